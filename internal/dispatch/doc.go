// Package dispatch runs one worker per submitted query and races it against
// a response deadline.
//
// Submit flow:
//   - The query is sanitized and a pending job record is written
//   - A worker is launched and registered as live
//   - Worker exit and the deadline timer both try to fire the response gate
//   - Whichever fires first decides what the caller sees; the other is ignored
//   - The job record is finalised when the worker exits, even if the caller
//     already received the "still working" placeholder
//
// Termination outcomes:
//   - Normal exit (any exit code) -> done, combined output as result
//   - Abort -> aborted, fixed result text
//   - Hard worker timeout -> done, partial output or the fallback result
//   - Launch failure -> error, reported to the caller immediately
package dispatch
