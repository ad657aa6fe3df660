package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jamesainslie/logsweep/pkg/logsweep/logging"
	"github.com/jamesainslie/logsweep/pkg/logsweep/rule"
)

// xmlPaths mirrors the legacy paths.xml layout:
//
//	<paths>
//	  <path>
//	    <name>web</name>
//	    <location>/var/log/web</location>
//	    <extensions>log,txt</extensions>
//	    <archiveDays>7</archiveDays>
//	    <deleteArchiveDays>30</deleteArchiveDays>
//	    <dryRun>false</dryRun>
//	    <deleteOriginal>true</deleteOriginal>
//	    <archiveDirectory>archive</archiveDirectory>
//	    <recursive>true</recursive>
//	  </path>
//	</paths>
type xmlPaths struct {
	XMLName xml.Name  `xml:"paths"`
	Paths   []xmlPath `xml:"path"`
}

type xmlPath struct {
	Name              string `xml:"name"`
	Location          string `xml:"location"`
	Extensions        string `xml:"extensions"`
	ArchiveDays       string `xml:"archiveDays"`
	DeleteArchiveDays string `xml:"deleteArchiveDays"`
	DryRun            string `xml:"dryRun"`
	DeleteOriginal    string `xml:"deleteOriginal"`
	ArchiveDirectory  string `xml:"archiveDirectory"`
	Recursive         string `xml:"recursive"`
}

func loadXML(path string) ([]rule.Rule, []RuleError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConfigUnreadable, err)
	}

	var doc xmlPaths
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: parsing %s: %w", ErrConfigUnreadable, path, err)
	}

	log := logging.Get("config")
	rules := make([]rule.Rule, 0, len(doc.Paths))
	var problems []RuleError
	for i, p := range doc.Paths {
		r, err := p.rule()
		if err != nil {
			problems = append(problems, RuleError{Index: i, Name: strings.TrimSpace(p.Name), Err: err})
			continue
		}
		if s := strings.TrimSpace(p.DeleteArchiveDays); s != "" && r.DeleteArchiveAfterDays == nil {
			log.Warn("unable to parse deleteArchiveDays, pruning disabled", "rule", r.Label(), "value", s)
		}
		rules = append(rules, r)
	}
	return rules, problems, nil
}

// rule converts a legacy entry. Booleans default to true unless the text
// is literally "false", except recursive, which is on only for "true".
func (p xmlPath) rule() (rule.Rule, error) {
	days, err := strconv.Atoi(strings.TrimSpace(p.ArchiveDays))
	if err != nil {
		return rule.Rule{}, fmt.Errorf("archiveDays %q is not a number", p.ArchiveDays)
	}

	r := rule.Rule{
		Name:             strings.TrimSpace(p.Name),
		Location:         strings.TrimSpace(p.Location),
		Extensions:       rule.NormalizeExtensions(strings.Split(p.Extensions, ",")),
		ArchiveAfterDays: days,
		DryRun:           !strings.EqualFold(strings.TrimSpace(p.DryRun), "false"),
		DeleteOriginal:   !strings.EqualFold(strings.TrimSpace(p.DeleteOriginal), "false"),
		ArchiveDirectory: strings.TrimSpace(p.ArchiveDirectory),
		Recursive:        strings.EqualFold(strings.TrimSpace(p.Recursive), "true"),
	}

	if n, err := strconv.Atoi(strings.TrimSpace(p.DeleteArchiveDays)); err == nil {
		r.DeleteArchiveAfterDays = &n
	}
	return r, nil
}
