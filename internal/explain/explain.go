// Package explain renders a human-readable account of why a Lookup reached
// the decision it did: the trie path walked, each node's own/inherited
// rights and finalized bounds, and which of Lookup's A/B/C shortcuts (if
// any) produced the answer. It is diagnostic text for CLI and log
// consumption, grounded on the teacher's internal/templates renderer -- it
// is not a UI.
package explain

import (
	"strings"

	"github.com/l0p7/repoauthz/internal/authzfile"
	"github.com/l0p7/repoauthz/internal/templates"
)

// NodeReport describes one trie node visited while explaining a lookup.
type NodeReport struct {
	Segment   string
	Own       string
	Effective string
	Min       string
	Max       string
	Shortcut  string
}

// Report is the full explanation of one access check.
type Report struct {
	Repo      string
	User      string
	Path      string
	Required  string
	Recursive bool
	Allowed   bool
	Nodes     []NodeReport
}

const reportTemplate = `access check for user={{.User | default "$anonymous"}} repo={{.Repo}} path={{.Path}} required={{.Required}}{{if .Recursive}} (recursive){{end}}
decision: {{if .Allowed}}ALLOW{{else}}DENY{{end}}
{{range .Nodes -}}
  /{{.Segment}} own={{.Own | default "-"}} effective={{.Effective}} min={{.Min}} max={{.Max}}{{if .Shortcut}} [{{.Shortcut}}]{{end}}
{{end -}}
`

// Renderer renders Reports as text using the shared template/sprig toolchain.
type Renderer struct {
	tmpl *templates.Template
}

// NewRenderer compiles the explain report template. No sandbox is needed:
// the explain template only ever consumes the Report values given to it, so
// file-backed templates and environment access stay disabled.
func NewRenderer() (*Renderer, error) {
	tr := templates.NewRenderer(nil)
	tmpl, err := tr.CompileInline("explain", reportTemplate)
	if err != nil {
		return nil, err
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render produces the textual explanation for report.
func (r *Renderer) Render(report Report) (string, error) {
	return r.tmpl.Render(report)
}

// Build walks trie along path exactly as Lookup would, recording the
// shortcut (if any) that resolved the decision at each step, and returns
// the finished Report. repo and user are carried through for display only;
// the decision itself is computed from required and recursive the same way
// authzfile.Trie.Lookup computes it.
func Build(trie *authzfile.Trie, repo, user, path string, required authzfile.Rights, recursive bool) Report {
	report := Report{
		Repo:      repo,
		User:      user,
		Path:      path,
		Required:  required.String(),
		Recursive: recursive,
	}
	if report.Required == "" {
		report.Required = "(none)"
	}

	root := trie.Root()
	report.Nodes = append(report.Nodes, nodeReport(root, ""))

	nodes := trie.Walk(path)
	segments := pathSegments(path)
	effective, min, max := root.Effective, root.Min, root.Max
	allowed := effective.Has(required)
	decided := false

	for i, n := range nodes {
		if i == 0 {
			continue // root already reported
		}
		shortcut, localDecision, fires := shortcutFor(min, max, required)
		nr := nodeReport(n, "")
		report.Nodes[len(report.Nodes)-1].Shortcut = shortcut
		report.Nodes = append(report.Nodes, nr)
		if fires && !decided {
			allowed = localDecision
			decided = true
		}
		effective, min, max = n.Effective, n.Min, n.Max
	}

	// Walk stops at the first missing child, same as Lookup; if that left
	// segments unvisited, Lookup still checks the shortcuts against the last
	// visited node before finding the child missing, and the remaining bounds
	// then collapse to that node's effective mask, exactly as Lookup's
	// "child not found" branch does.
	if len(nodes) <= len(segments) {
		shortcut, localDecision, fires := shortcutFor(min, max, required)
		report.Nodes[len(report.Nodes)-1].Shortcut = shortcut
		if fires && !decided {
			allowed = localDecision
			decided = true
		}
		min, max = effective, effective
	}

	if !decided {
		if recursive {
			allowed = min.Has(required)
		} else {
			allowed = effective.Has(required)
		}
	}
	report.Allowed = allowed
	return report
}

func pathSegments(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
}

func shortcutFor(min, max, required authzfile.Rights) (label string, decision bool, fires bool) {
	if !max.Has(required) {
		return "shortcut A: deny via max_rights", false, true
	}
	if min.Has(required) {
		return "shortcut B: allow via min_rights", true, true
	}
	if (min & required) == (max & required) {
		return "shortcut C: min==max on required bits", min.Has(required), true
	}
	return "", false, false
}

func nodeReport(n authzfile.Node, shortcut string) NodeReport {
	own := ""
	if n.Own != nil {
		own = n.Own.String()
	}
	return NodeReport{
		Segment:   displaySegment(n.Segment),
		Own:       own,
		Effective: n.Effective.String(),
		Min:       n.Min.String(),
		Max:       n.Max.String(),
		Shortcut:  shortcut,
	}
}

func displaySegment(segment string) string {
	if strings.TrimSpace(segment) == "" {
		return "(root)"
	}
	return segment
}
