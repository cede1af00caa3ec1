package jtag

import "fmt"

// State is a TAP controller state.
type State uint8

const (
	TestLogicReset State = iota
	RunTestIdle
	SelectDR
	CaptureDR
	ShiftDR
	Exit1DR
	PauseDR
	Exit2DR
	UpdateDR
	SelectIR
	CaptureIR
	ShiftIR
	Exit1IR
	PauseIR
	Exit2IR
	UpdateIR

	numStates = iota
)

var displayText = [numStates]string{
	TestLogicReset: "Test-Logic-Reset",
	RunTestIdle:    "Run-Test/Idle",
	SelectDR:       "Select-DR-Scan",
	CaptureDR:      "Capture-DR",
	ShiftDR:        "Shift-DR",
	Exit1DR:        "Exit1-DR",
	PauseDR:        "Pause-DR",
	Exit2DR:        "Exit2-DR",
	UpdateDR:       "Update-DR",
	SelectIR:       "Select-IR-Scan",
	CaptureIR:      "Capture-IR",
	ShiftIR:        "Shift-IR",
	Exit1IR:        "Exit1-IR",
	PauseIR:        "Pause-IR",
	Exit2IR:        "Exit2-IR",
	UpdateIR:       "Update-IR",
}

// transitions is indexed by [current][tms].
var transitions = [numStates][2]State{
	TestLogicReset: {RunTestIdle, TestLogicReset},
	RunTestIdle:    {RunTestIdle, SelectDR},
	SelectDR:       {CaptureDR, SelectIR},
	CaptureDR:      {ShiftDR, Exit1DR},
	ShiftDR:        {ShiftDR, Exit1DR},
	Exit1DR:        {PauseDR, UpdateDR},
	PauseDR:        {PauseDR, Exit2DR},
	Exit2DR:        {ShiftDR, UpdateDR},
	UpdateDR:       {RunTestIdle, SelectDR},
	SelectIR:       {CaptureIR, TestLogicReset},
	CaptureIR:      {ShiftIR, Exit1IR},
	ShiftIR:        {ShiftIR, Exit1IR},
	Exit1IR:        {PauseIR, UpdateIR},
	PauseIR:        {PauseIR, Exit2IR},
	Exit2IR:        {ShiftIR, UpdateIR},
	UpdateIR:       {RunTestIdle, SelectDR},
}

// States returns every state in table order.
func States() []State {
	out := make([]State, numStates)
	for i := range out {
		out[i] = State(i)
	}
	return out
}

func (s State) Valid() bool {
	return s < numStates
}

func (s State) String() string {
	if !s.Valid() {
		return fmt.Sprintf("State(%d)", uint8(s))
	}
	return displayText[s]
}

// Next returns the state entered on a TCK rising edge with the given TMS bit.
// Any non-zero tms reads as 1.
func (s State) Next(tms uint8) State {
	if tms != 0 {
		tms = 1
	}
	return transitions[s][tms]
}

func (s State) IsCapture() bool {
	return s == CaptureDR || s == CaptureIR
}

func (s State) IsShift() bool {
	return s == ShiftDR || s == ShiftIR
}

func (s State) IsUpdate() bool {
	return s == UpdateDR || s == UpdateIR
}

// IsIR reports whether s belongs to the instruction-register half.
func (s State) IsIR() bool {
	return s >= SelectIR && s <= UpdateIR
}
