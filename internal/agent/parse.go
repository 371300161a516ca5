package agent

import (
	"regexp"
	"strings"
)

// The LLM is instructed to mark up its output with |Thought:|, |Action:|
// and |Final Answer:| sections. Section bodies run until the next marker
// or the end of the output.
var (
	thoughtRe = regexp.MustCompile(`(?s)\|Thought:\|(.*?)(?:\|Action:|\|Final Answer:|$)`)
	actionRe  = regexp.MustCompile(`(?s)\|Action:\|(.*?)(?:\|Thought:|\|Final Answer:|$)`)
	finalRe   = regexp.MustCompile(`(?s)\|Final Answer:\|(.*?)(?:\|Thought:|\|Action:|$)`)
)

// parsed is one decoded LLM response.
type parsed struct {
	Thought     string
	FinalAnswer string

	// HasAction is set when an |Action:| section named a tool.
	HasAction bool
	Tool      string
	Arg       string
}

// parseOutput decodes an LLM response into its marked-up sections. An
// action section must look like "tool_name: argument"; anything without a
// colon is ignored.
func parseOutput(output string) parsed {
	var p parsed

	if m := thoughtRe.FindStringSubmatch(output); m != nil {
		p.Thought = strings.TrimSpace(m[1])
	}
	if m := finalRe.FindStringSubmatch(output); m != nil {
		p.FinalAnswer = strings.TrimSpace(m[1])
	}
	if m := actionRe.FindStringSubmatch(output); m != nil {
		action := strings.TrimSpace(m[1])
		if tool, arg, ok := strings.Cut(action, ":"); ok {
			p.HasAction = true
			p.Tool = strings.TrimSpace(tool)
			p.Arg = strings.TrimSpace(arg)
		}
	}
	return p
}
