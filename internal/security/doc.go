// Package security derives a read-only posture summary from the engine's
// frozen configuration. It computes, it never enforces: callers log or
// export the report and decide what to do with it.
package security
