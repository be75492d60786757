// Package mailer renders the campaign message and delivers it to one
// address at a time over SMTP or AWS SES.
//
// Delivery failures are returned as *SendError carrying a Reason so the
// caller can log auth problems apart from server rejections.
package mailer
