// Package engine runs the autonomous tool-calling loop.
//
// Each round sends the conversation and the tool catalogue to the model.
// A response without tool calls is the final answer; otherwise every requested
// call is executed against its provider and the results are appended to the
// conversation in request order before the next round.
// The loop stops after the configured number of rounds.
package engine
