// Package tgui holds small helpers for text sent to Telegram: HTML that is
// escaped by construction, and rune-safe truncation for user-supplied text.
package tgui
