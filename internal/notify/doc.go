// Package notify reports run lifecycle events to a Telegram chat.
//
// The Telegram notifier also implements logx.Sink so the logging service can
// forward WARN and ERROR lines to the same chat.
package notify
