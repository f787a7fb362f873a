package diag

// Reporter is the minimal contract for receiving issues from an analysis
// phase. Implementations: BagReporter (appends to a Bag), NopReporter.
type Reporter interface {
	Report(issue Issue)
}

// BagReporter forwards issues into a *Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(issue Issue) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(issue)
}

// NopReporter drops every issue.
type NopReporter struct{}

func (NopReporter) Report(Issue) {}

// FuncReporter adapts a function to the Reporter interface.
type FuncReporter func(Issue)

func (f FuncReporter) Report(issue Issue) {
	if f != nil {
		f(issue)
	}
}
