package agent

import "testing"

func TestParseOutputFinalAnswer(t *testing.T) {
	p := parseOutput("|Thought:| The user greeted me.\n|Final Answer:| Hello! How can I help?")
	if p.Thought != "The user greeted me." {
		t.Errorf("thought = %q", p.Thought)
	}
	if p.FinalAnswer != "Hello! How can I help?" {
		t.Errorf("final answer = %q", p.FinalAnswer)
	}
	if p.HasAction {
		t.Error("unexpected action")
	}
}

func TestParseOutputAction(t *testing.T) {
	p := parseOutput("|Thought:| Need to turn on the light.\n|Action:| control_light: living_room, on")
	if !p.HasAction {
		t.Fatal("expected an action")
	}
	if p.Tool != "control_light" {
		t.Errorf("tool = %q", p.Tool)
	}
	if p.Arg != "living_room, on" {
		t.Errorf("arg = %q", p.Arg)
	}
	if p.FinalAnswer != "" {
		t.Errorf("unexpected final answer %q", p.FinalAnswer)
	}
}

func TestParseOutputActionArgKeepsColons(t *testing.T) {
	// Only the first colon separates tool from argument.
	p := parseOutput("|Action:| run_shell_command: date +%H:%M")
	if !p.HasAction {
		t.Fatal("expected an action")
	}
	if p.Tool != "run_shell_command" {
		t.Errorf("tool = %q", p.Tool)
	}
	if p.Arg != "date +%H:%M" {
		t.Errorf("arg = %q", p.Arg)
	}
}

func TestParseOutputActionWithoutColonIgnored(t *testing.T) {
	p := parseOutput("|Action:| do something vague")
	if p.HasAction {
		t.Error("colon-less action should be ignored")
	}
}

func TestParseOutputPlainTextHasNothing(t *testing.T) {
	p := parseOutput("Sure, I can help with that.")
	if p.Thought != "" || p.FinalAnswer != "" || p.HasAction {
		t.Errorf("parsed = %+v, want empty", p)
	}
}

func TestParseOutputMultilineSections(t *testing.T) {
	out := "|Thought:| First line.\nSecond line.\n|Final Answer:| Done.\nReally done."
	p := parseOutput(out)
	if p.Thought != "First line.\nSecond line." {
		t.Errorf("thought = %q", p.Thought)
	}
	if p.FinalAnswer != "Done.\nReally done." {
		t.Errorf("final answer = %q", p.FinalAnswer)
	}
}
