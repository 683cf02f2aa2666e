// Package menu maps free-text commands and interactive selections to
// static content replies, flow starts, and handoff markers.
package menu
