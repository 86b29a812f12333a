package scan

import (
	"fmt"
	"io"

	"github.com/owenrumney/go-sarif/v3/pkg/report/v210/sarif"

	"github.com/reglet-dev/kiln/internal/version"
)

// WriteSARIF writes scan findings as a SARIF 2.1.0 report, one result
// per finding with its file location.
func WriteSARIF(w io.Writer, result *Result) error {
	report := sarif.NewReport()

	run := sarif.NewRunWithInformationURI("kiln", "https://github.com/reglet-dev/kiln")
	toolVersion := version.Get().Version
	run.Tool.Driver.Version = &toolVersion

	rules := make(map[string]bool)
	for _, f := range result.Findings {
		if !rules[f.RuleID] {
			rule := sarif.NewReportingDescriptor().WithID(f.RuleID)
			rule.WithShortDescription(&sarif.MultiformatMessageString{
				Text: &f.Description,
			})
			run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, rule)
			rules[f.RuleID] = true
		}

		res := sarif.NewRuleResult(f.RuleID)
		res.Message = sarif.NewTextMessage(fmt.Sprintf("%s (secret: %s)", f.Description, f.Secret))

		pLoc := sarif.NewPhysicalLocation().
			WithArtifactLocation(sarif.NewArtifactLocation().WithURI(f.File))
		pLoc.WithRegion(sarif.NewRegion().WithStartLine(f.StartLine))

		res.Locations = []*sarif.Location{
			sarif.NewLocation().WithPhysicalLocation(pLoc),
		}

		run.Results = append(run.Results, res)
	}

	report.AddRun(run)

	if err := report.Write(w); err != nil {
		return fmt.Errorf("failed to write SARIF output: %w", err)
	}

	_, err := w.Write([]byte("\n"))
	return err
}
