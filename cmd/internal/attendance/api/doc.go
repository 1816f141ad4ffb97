// Package api exposes the attendance register over HTTP.
//
// Every endpoint answers JSON to API and XHR callers and a 303 redirect with a
// signed flash cookie to plain form posts. State-changing calls require the
// double-submit anti-forgery token issued by GET /attendance/csrf.
package api
