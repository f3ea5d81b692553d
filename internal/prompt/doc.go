// Package prompt compiles the system and user prompts for crash analysis.
//
// # Overview
//
// The system prompt frames the model as a crash diagnosis expert and injects
// the known crash rules from a [knowledge.Store]. Two [Mode] values control
// how much of the store is injected:
//
//   - [ModeFull]: every rule, with the matched ones listed as a hint
//   - [ModeFiltered]: only the rules the matcher selected for this log
//
// Choosing between them is the analyzer's job; this package only renders.
//
// # Basic usage
//
//	matched := store.Select(logText, platform)
//	system, err := prompt.BuildSystemPrompt(store, matched, prompt.ModeFiltered,
//	    prompt.WithJSONContract(true))
//	if err != nil {
//	    return err
//	}
//	user := prompt.BuildUserPrompt(logText, true)
//
// Rendering is deterministic: the same rules and mode always produce the same
// bytes, and nothing is ever truncated.
package prompt
