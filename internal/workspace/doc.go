// Package workspace prepares and tracks per-robot execution workspaces.
//
// A robot package is a directory containing a robot.yaml manifest whose
// tasks mapping declares the runnable task names. Initialize copies the
// package into <root>/robot-<id>/ and returns those names; the caller
// records them in the registry and flips the robot's initialized gate.
//
// The optional Watcher keeps the cached task lists fresh: it watches each
// initialized workspace's robot.yaml and pushes re-parsed task names into
// the registry on change.
package workspace
