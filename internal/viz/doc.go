// Package viz renders recording progress and dataset reports in the terminal.
//
//   - [ProgressModel]: Bubble Tea model fed by a running recording
//   - [TeaObserver]: forwards orchestrator events to a Bubble Tea program
//   - [RenderReport]: dataset summary with asciigraph plots
//
// Colors come from a [Theme]; the default is picked with [GetTheme].
package viz
