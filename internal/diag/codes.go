package diag

// Code identifies an issue kind. Codes are stable strings: pragmas refer to
// them (`@mantis-ignore[invalid-argument]`) and the presentation layer sorts
// by them.
type Code string

const (
	CodeNone Code = ""

	// Type errors.
	CodeInvalidArgument          Code = "invalid-argument"
	CodeInvalidReturnStatement   Code = "invalid-return-statement"
	CodeInvalidOperand           Code = "invalid-operand"
	CodeImpossibleCondition      Code = "impossible-condition"
	CodeRedundantCondition       Code = "redundant-condition"
	CodeDocblockTypeMismatch     Code = "docblock-type-mismatch"
	CodeLessSpecificArgument     Code = "less-specific-argument"
	CodePossiblyInvalidArgument  Code = "possibly-invalid-argument"
	CodeInvalidPropertyWrite     Code = "invalid-property-write"
	CodeMixedArgument            Code = "mixed-argument"
	CodeMixedMethodAccess        Code = "mixed-method-access"
	CodeMixedPropertyAccess      Code = "mixed-property-access"

	// Symbol resolution.
	CodeNonExistentClass         Code = "non-existent-class"
	CodeNonExistentMethod        Code = "non-existent-method"
	CodeNonExistentConstant      Code = "non-existent-constant"
	CodeNonExistentProperty      Code = "non-existent-property"
	CodeNonExistentFunction      Code = "non-existent-function"
	CodeInvalidParentReference   Code = "invalid-parent-reference"
	CodeInaccessibleMethod       Code = "inaccessible-method"
	CodeInaccessibleConstant     Code = "inaccessible-constant"
	CodeInaccessibleProperty     Code = "inaccessible-property"
	CodeAmbiguousClassReference  Code = "ambiguous-class-reference"
	CodeEnumCaseNotFound         Code = "enum-case-not-found"

	// Null and access safety.
	CodeMethodAccessOnNull         Code = "method-access-on-null"
	CodePossibleMethodAccessOnNull Code = "possible-method-access-on-null"
	CodePropertyAccessOnNull       Code = "property-access-on-null"
	CodeScalarMethodAccess         Code = "scalar-method-access"
	CodePossiblyUndefinedVariable  Code = "possibly-undefined-variable"
	CodeUndefinedVariable          Code = "undefined-variable"

	// Flow.
	CodeUnreachableCode       Code = "unreachable-code"
	CodeParadoxicalCondition  Code = "paradoxical-condition"
	CodeByReferenceCapture    Code = "by-reference-capture"

	// Override attribute rule.
	CodeMissingOverrideAttribute     Code = "missing-override-attribute"
	CodeUnnecessaryOverrideAttribute Code = "unnecessary-override-attribute"
	CodeInvalidOverrideOnConstructor Code = "invalid-override-on-constructor"

	// Data flow.
	CodeTaintedDataToSink Code = "tainted-data-to-sink"

	// Collector bookkeeping.
	CodeUnusedPragma      Code = "unused-pragma"
	CodeUnfulfilledExpect Code = "unfulfilled-expect"
	CodeInternalError     Code = "internal-error"
)

var codeTitles = map[Code]string{
	CodeInvalidArgument:              "argument type is not assignable to the parameter type",
	CodeInvalidReturnStatement:       "returned type is not assignable to the declared return type",
	CodeInvalidOperand:               "operand type is invalid for this operator",
	CodeImpossibleCondition:          "condition is always false",
	CodeRedundantCondition:           "condition is always true",
	CodeDocblockTypeMismatch:         "docblock type disagrees with the inferred type",
	CodeLessSpecificArgument:         "argument type is less specific than required",
	CodePossiblyInvalidArgument:      "argument type may not be assignable to the parameter type",
	CodeInvalidPropertyWrite:         "written type is not assignable to the property type",
	CodeMixedArgument:                "argument type is mixed",
	CodeMixedMethodAccess:            "method access on mixed",
	CodeMixedPropertyAccess:          "property access on mixed",
	CodeNonExistentClass:             "class does not exist",
	CodeNonExistentMethod:            "method does not exist",
	CodeNonExistentConstant:          "constant does not exist",
	CodeNonExistentProperty:          "property does not exist",
	CodeNonExistentFunction:          "function does not exist",
	CodeInvalidParentReference:       "parent used in a class without a parent",
	CodeInaccessibleMethod:           "method is not accessible from this scope",
	CodeInaccessibleConstant:         "constant is not accessible from this scope",
	CodeInaccessibleProperty:         "property is not accessible from this scope",
	CodeAmbiguousClassReference:      "class reference cannot be resolved statically",
	CodeEnumCaseNotFound:             "enum case does not exist",
	CodeMethodAccessOnNull:           "method access on null",
	CodePossibleMethodAccessOnNull:   "method access on possibly-null value",
	CodePropertyAccessOnNull:         "property access on null",
	CodeScalarMethodAccess:           "method access on a scalar value",
	CodePossiblyUndefinedVariable:    "variable may be undefined on some paths",
	CodeUndefinedVariable:            "variable is undefined",
	CodeUnreachableCode:              "statement is unreachable",
	CodeParadoxicalCondition:         "condition contradicts an earlier narrowing",
	CodeByReferenceCapture:           "by-reference capture is treated as by-value",
	CodeMissingOverrideAttribute:     "method overrides a parent method but lacks the override attribute",
	CodeUnnecessaryOverrideAttribute: "override attribute on a method that overrides nothing",
	CodeInvalidOverrideOnConstructor: "override attribute is not allowed on constructors",
	CodeTaintedDataToSink:            "tainted data reaches a sensitive sink",
	CodeUnusedPragma:                 "pragma suppressed nothing",
	CodeUnfulfilledExpect:            "expected issue was not reported",
	CodeInternalError:                "internal analyzer error",
}

// Title returns the one-line description of the code.
func (c Code) Title() string {
	if t, ok := codeTitles[c]; ok {
		return t
	}
	return string(c)
}

func (c Code) String() string {
	return string(c)
}
