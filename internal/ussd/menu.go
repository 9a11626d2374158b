package ussd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SmartInclusion/SmartInclusion/internal/models"
)

// Menu formatting constants
const (
	// RootMenuTitle heads the menu shown when a session starts.
	RootMenuTitle = "Welcome to Smart Inclusion System"
	// MenuOptionFormat is the format string for one numbered menu line
	MenuOptionFormat = "\n%d. %s"
)

// Terminal texts shared by every branch.
const (
	InvalidOptionText = "Invalid option"
	InvalidInputText  = "Invalid input."
)

// rootMenuLabels lists the options shown on the root menu, in order.
var rootMenuLabels = []string{
	"Register as Farmer",
	"Report Crop Production",
	"Report Livestock",
	"Check Market Prices",
	"Farming Tips",
	"Weather Update",
}

// RootMenu returns the text of the session start prompt.
func RootMenu() string {
	var sb strings.Builder
	sb.WriteString(RootMenuTitle)
	for i, label := range rootMenuLabels {
		fmt.Fprintf(&sb, MenuOptionFormat, i+1, label)
	}
	return sb.String()
}

// OutcomeKind tells the client whether to keep the session open.
type OutcomeKind int

const (
	// OutcomePrompt asks the client for another token.
	OutcomePrompt OutcomeKind = iota
	// OutcomeTerminal ends the session.
	OutcomeTerminal
)

// String returns the wire marker for the kind.
func (k OutcomeKind) String() string {
	if k == OutcomePrompt {
		return "CON"
	}
	return "END"
}

// Outcome is the result of one menu transition.
type Outcome struct {
	Kind OutcomeKind
	Text string
	// Draft is set when a flow completed and the sink stored it.
	Draft *models.Draft
}

// Prompt builds a continuation outcome.
func Prompt(text string) Outcome {
	return Outcome{Kind: OutcomePrompt, Text: text}
}

// Terminal builds a session-ending outcome.
func Terminal(text string) Outcome {
	return Outcome{Kind: OutcomeTerminal, Text: text}
}

// RecordSink persists completed drafts. Implementations report storage faults
// through the returned result instead of an error.
type RecordSink interface {
	Persist(ctx context.Context, d models.Draft) models.PersistResult
}

// menuOption is one top-level menu branch. Each branch owns its arity and how
// it turns step tokens into an outcome.
type menuOption interface {
	advance(ctx context.Context, sink RecordSink, steps []string, phone string) Outcome
}

// Machine resolves a step sequence to the next outcome.
type Machine struct {
	sink    RecordSink
	options map[string]menuOption
}

// NewMachine creates a Machine with the standard menu. A nil sink makes every
// completed flow end with its failure text.
func NewMachine(sink RecordSink) *Machine {
	return &Machine{
		sink:    sink,
		options: defaultOptions(),
	}
}

// Transition returns the outcome for the given steps. The first step selects
// the branch; the rest are that branch's field values.
func (m *Machine) Transition(ctx context.Context, steps []string, phone string) Outcome {
	if len(steps) == 0 {
		return Prompt(RootMenu())
	}
	opt, ok := m.options[steps[0]]
	if !ok {
		slog.Debug("Machine.Transition: unknown selection", "selection", steps[0], "phone", phone)
		return Terminal(InvalidOptionText)
	}
	return opt.advance(ctx, m.sink, steps, phone)
}

// collectFlow gathers one field per step and persists a draft once every
// prompt has been answered.
type collectFlow struct {
	kind    models.RecordKind
	prompts []string
	success string
	failure string
}

// terminalLength is the step count at which the flow completes: the selection
// token plus one token per prompt.
func (f collectFlow) terminalLength() int {
	return len(f.prompts) + 1
}

func (f collectFlow) advance(ctx context.Context, sink RecordSink, steps []string, phone string) Outcome {
	n := len(steps)
	switch {
	case n < f.terminalLength():
		return Prompt(f.prompts[n-1])
	case n > f.terminalLength():
		slog.Debug("collectFlow.advance: step overflow", "kind", f.kind, "steps", n, "terminal_length", f.terminalLength())
		return Terminal(InvalidInputText)
	}

	draft := models.Draft{
		Kind:   f.kind,
		Phone:  phone,
		Fields: append([]string(nil), steps[1:]...),
	}
	if sink == nil {
		slog.Error("collectFlow.advance: no record sink configured", "kind", f.kind, "phone", phone)
		return Terminal(f.failure)
	}
	if res := sink.Persist(ctx, draft); !res.OK() {
		slog.Error("collectFlow.advance: persist failed", "kind", f.kind, "phone", phone, "reason", res.Reason)
		return Terminal(f.failure)
	}
	slog.Info("collectFlow.advance: record persisted", "kind", f.kind, "phone", phone)
	return Outcome{Kind: OutcomeTerminal, Text: f.success, Draft: &draft}
}

// infoOption answers immediately with a fixed text.
type infoOption struct {
	text string
}

func (o infoOption) advance(ctx context.Context, sink RecordSink, steps []string, phone string) Outcome {
	if len(steps) != 1 {
		return Terminal(InvalidOptionText)
	}
	return Terminal(o.text)
}
