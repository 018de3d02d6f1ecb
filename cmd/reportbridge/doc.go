// Command reportbridge moves generated financial reports from the payments
// platform into the compliance platform's KYT imports. It exposes full runs
// (run), the separate halves (export, import), run history (runs), and
// environment checks (status).
package main
