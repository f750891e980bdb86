// Package activity carries local user-interaction signals (pointer movement,
// key presses, scrolling, clicks) from whatever observes them to the
// components that react to user presence.
package activity
