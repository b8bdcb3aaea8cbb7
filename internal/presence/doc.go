// Package presence detects devices that have gone silent.
//
// The Monitor periodically sweeps state records whose last interaction
// is older than the missing interval and flags them through the state
// manager. The flag is cleared by the next non-empty merge, so a device
// that resumes reporting becomes present again without any action here.
package presence
