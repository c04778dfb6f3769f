// Package deploy installs the agent chart with helm and verifies the
// rollout.
//
// External tools (helm, kubectl, docker) are invoked through the Runner
// interface. Installation retries are bounded: each retry uninstalls
// the previous attempt's release, waits a fixed delay, and installs
// again. Label assignment runs only after the release reports deployed,
// since the platform materializes workload profiles only once the agent
// has registered.
package deploy
