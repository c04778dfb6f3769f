package pce

import "strings"

// Ref is a reference to a policy object by href, the form the platform
// expects when one object points at another.
type Ref struct {
	Href string `json:"href"`
}

// IDFromHref returns the trailing path segment of an object href, which
// is the object's identifier. Returns "" for an empty href.
func IDFromHref(href string) string {
	href = strings.TrimSuffix(href, "/")
	if href == "" {
		return ""
	}
	idx := strings.LastIndex(href, "/")
	return href[idx+1:]
}

// Label is a policy label. Key is one of the platform's label
// dimensions (role, app, env, loc, or a custom key).
type Label struct {
	Href  string `json:"href,omitempty"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ContainerCluster is a registered Kubernetes cluster. ContainerClusterToken
// is only populated in the create response and cannot be retrieved again.
type ContainerCluster struct {
	Href                  string `json:"href,omitempty"`
	Name                  string `json:"name"`
	Description           string `json:"description,omitempty"`
	ContainerClusterToken string `json:"container_cluster_token,omitempty"`
}

// ID returns the cluster's identifier derived from its href.
func (c *ContainerCluster) ID() string {
	return IDFromHref(c.Href)
}

// PairingProfile is a workload pairing profile. The lock flags pin the
// corresponding setting so paired workloads cannot override it.
type PairingProfile struct {
	Href                string `json:"href,omitempty"`
	Name                string `json:"name"`
	Description         string `json:"description,omitempty"`
	EnforcementMode     string `json:"enforcement_mode"`
	EnforcementModeLock bool   `json:"enforcement_mode_lock"`
	Enabled             bool   `json:"enabled"`
	KeyLifespan         string `json:"key_lifespan"`
	AllowedUsesPerKey   string `json:"allowed_uses_per_key"`
	LogTraffic          bool   `json:"log_traffic"`
	LogTrafficLock      bool   `json:"log_traffic_lock"`
	VisibilityLevel     string `json:"visibility_level"`
	VisibilityLevelLock bool   `json:"visibility_level_lock"`
	EnvLabelLock        bool   `json:"env_label_lock"`
	LocLabelLock        bool   `json:"loc_label_lock"`
	RoleLabelLock       bool   `json:"role_label_lock"`
	AppLabelLock        bool   `json:"app_label_lock"`
	VENType             string `json:"ven_type"`
	Labels              []Ref  `json:"labels"`
}

// ID returns the profile's identifier derived from its href.
func (p *PairingProfile) ID() string {
	return IDFromHref(p.Href)
}

// WorkloadProfile is a container workload profile, one per namespace
// observed in a cluster. AssignLabels replaces Labels when set.
// Managed is a pointer so partial updates omit it: a PUT carrying
// managed:false would unmanage the profile.
type WorkloadProfile struct {
	Href            string         `json:"href,omitempty"`
	Name            string         `json:"name,omitempty"`
	Namespace       string         `json:"namespace,omitempty"`
	EnforcementMode string         `json:"enforcement_mode,omitempty"`
	Managed         *bool          `json:"managed,omitempty"`
	Linked          bool           `json:"linked,omitempty"`
	Labels          []ProfileLabel `json:"labels,omitempty"`
	AssignLabels    []Ref          `json:"assign_labels,omitempty"`
}

// ID returns the workload profile's identifier derived from its href.
func (w *WorkloadProfile) ID() string {
	return IDFromHref(w.Href)
}

// IsManaged reports whether the platform returned the profile as
// managed.
func (w *WorkloadProfile) IsManaged() bool {
	return w.Managed != nil && *w.Managed
}

// Bool returns a pointer to b for optional request fields.
func Bool(b bool) *bool {
	return &b
}

// ProfileLabel is a per-key label assignment on a workload profile.
// Assignment pins the label; Restriction limits what a workload may
// report for the key.
type ProfileLabel struct {
	Key         string `json:"key"`
	Assignment  *Ref   `json:"assignment,omitempty"`
	Restriction []Ref  `json:"restriction,omitempty"`
}
