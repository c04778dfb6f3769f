package labels

import (
	"strings"

	"github.com/seglab/pcectl/pkg/types"
)

// Convention describes how categorical labels are decoded from a
// cluster name. The offsets and code tables encode organizational
// naming conventions; they are data, not logic, so the convention can
// change without a code change (it is loadable from the config file).
type Convention struct {
	// Environment segment, e.g. name[2:5] == "dev".
	EnvStart int               `mapstructure:"env_start" yaml:"env_start"`
	EnvEnd   int               `mapstructure:"env_end" yaml:"env_end"`
	EnvCodes map[string]string `mapstructure:"env_codes" yaml:"env_codes"`

	// Fallback single-character environment code, e.g. name[5] == 'd'.
	EnvFallbackPos   int               `mapstructure:"env_fallback_pos" yaml:"env_fallback_pos"`
	EnvFallbackCodes map[string]string `mapstructure:"env_fallback_codes" yaml:"env_fallback_codes"`

	// Location single-character code, e.g. name[6] == 's'.
	LocPos     int               `mapstructure:"loc_pos" yaml:"loc_pos"`
	LocCodes   map[string]string `mapstructure:"loc_codes" yaml:"loc_codes"`
	LocDefault string            `mapstructure:"loc_default" yaml:"loc_default"`

	// Workload type substring markers, e.g. "gtw" anywhere in the name.
	WorkloadMarkers map[string]string `mapstructure:"workload_markers" yaml:"workload_markers"`
	WorkloadDefault string            `mapstructure:"workload_default" yaml:"workload_default"`

	// Role label values a pairing profile may be scoped with.
	ProfileRoles []string `mapstructure:"profile_roles" yaml:"profile_roles"`
}

// Derived is the set of categorical label values decoded from a
// cluster name.
type Derived struct {
	Environment  string
	Location     string
	Role         string
	WorkloadType string
}

// DefaultConvention returns the convention currently in effect for
// cluster names, e.g. "abcdevuse1": positions 2-5 carry the
// environment code and position 6 the location code.
func DefaultConvention() Convention {
	return Convention{
		EnvStart: 2,
		EnvEnd:   5,
		EnvCodes: map[string]string{
			"dev": types.EnvDevelopment,
			"cln": types.EnvClone,
			"uat": types.EnvClone,
			"prd": types.EnvProduction,
		},
		EnvFallbackPos: 5,
		EnvFallbackCodes: map[string]string{
			"d": types.EnvDevelopment,
			"q": types.EnvClone,
			"a": types.EnvClone,
			"c": types.EnvClone,
			"p": types.EnvProduction,
		},
		LocPos: 6,
		LocCodes: map[string]string{
			"s": "Azure South Central US",
			"n": "Azure North Central US",
		},
		LocDefault: "Azure Central US",
		WorkloadMarkers: map[string]string{
			"gtw": "mulesoft",
		},
		WorkloadDefault: "general",
		ProfileRoles:    []string{"Container", "Cluster Node"},
	}
}

// Derive decodes the environment, location, role and workload type
// from a cluster name according to the convention.
func (c Convention) Derive(clusterName string) Derived {
	d := Derived{
		Environment:  c.deriveEnvironment(clusterName),
		Location:     c.deriveLocation(clusterName),
		WorkloadType: c.WorkloadDefault,
	}

	if len(c.ProfileRoles) > 0 {
		d.Role = c.ProfileRoles[0]
	}

	for marker, workload := range c.WorkloadMarkers {
		if strings.Contains(clusterName, marker) {
			d.WorkloadType = workload
			break
		}
	}

	return d
}

func (c Convention) deriveEnvironment(name string) string {
	if len(name) >= c.EnvEnd {
		if env, ok := c.EnvCodes[name[c.EnvStart:c.EnvEnd]]; ok {
			return env
		}
	}

	// Fall back to the single-character code.
	if len(name) > c.EnvFallbackPos {
		if env, ok := c.EnvFallbackCodes[string(name[c.EnvFallbackPos])]; ok {
			return env
		}
	}

	return ""
}

func (c Convention) deriveLocation(name string) string {
	if len(name) > c.LocPos {
		if loc, ok := c.LocCodes[string(name[c.LocPos])]; ok {
			return loc
		}
	}
	return c.LocDefault
}
