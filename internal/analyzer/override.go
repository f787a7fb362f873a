package analyzer

import (
	"mantis/internal/ast"
	"mantis/internal/codebase"
	"mantis/internal/diag"
	"mantis/internal/source"
)

// checkOverrideAttribute verifies the #[Override] contract of one method:
// overriding methods must carry the attribute, non-overriding methods
// must not, and constructors never take it.
func (a *Analyzer) checkOverrideAttribute(classID source.NameID, method *ast.FunctionDecl) {
	class, ok := a.meta.ClassLike(classID)
	if !ok || class.Kind == codebase.KindInterface {
		return
	}

	methodID := a.in.Lowered(method.Name)
	attr, hasAttr := a.overrideAttribute(method)
	_, overrides := class.OverriddenMethodIDs[methodID]

	meta, haveMeta := a.meta.DeclaringMethod(classID, methodID)
	if haveMeta && meta.IsConstructor {
		if hasAttr {
			a.sink.Report(diag.Error(diag.CodeInvalidOverrideOnConstructor, attr.Sp,
				"constructors cannot carry #[Override]").
				WithFix("remove #[Override]", diag.FixSafe, diag.TextEdit{
					Span: attr.Sp,
				}))
		}
		return
	}
	if method.Abstract {
		return
	}

	switch {
	case overrides && !hasAttr:
		a.sink.Report(diag.Warning(diag.CodeMissingOverrideAttribute, method.NameSp,
			a.in.MustLookup(method.Name)+" overrides a parent method without #[Override]").
			WithFix("add #[Override]", diag.FixSafe, diag.TextEdit{
				Span:    source.Span{File: method.Sp.File, Start: method.Sp.Start, End: method.Sp.Start},
				NewText: "#[Override]\n",
			}))
	case !overrides && hasAttr:
		a.sink.Report(diag.Warning(diag.CodeUnnecessaryOverrideAttribute, attr.Sp,
			a.in.MustLookup(method.Name)+" does not override anything").
			WithFix("remove #[Override]", diag.FixSafe, diag.TextEdit{
				Span: attr.Sp,
			}))
	}
}

func (a *Analyzer) overrideAttribute(method *ast.FunctionDecl) (ast.Attribute, bool) {
	want := a.in.Lowered(a.in.Intern("Override"))
	for _, attr := range method.Attributes {
		if a.in.Lowered(attr.Name) == want {
			return attr, true
		}
	}
	return ast.Attribute{}, false
}
