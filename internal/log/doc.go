// Package log provides secure logging for ghcrawl, built on top of the
// standard slog package.
//
// The crawler logs GraphQL failures together with their response headers and
// error payloads. Those diagnostics may carry the API token (for example an
// echoed Authorization header) so every record passes through SecureHandler,
// which:
//   - masks attributes whose key names a credential (authorization, token, ...)
//   - scrubs GitHub token values (ghp_, gho_, ghs_, ghu_, ghr_, github_pat_)
//     and bearer credentials embedded anywhere in string and error values
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Warn("task failed", "task", id, "error", err) // tokens in err are scrubbed
//	slog.SetDefault(logger)
package log
