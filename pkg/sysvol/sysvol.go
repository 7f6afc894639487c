// Package sysvol holds the layout conventions of a domain's policy volume and
// the candidate type passed between the scan stages
package sysvol

import (
	"strings"

	"github.com/leaktk/sysvolscan/pkg/remotefs"
)

// Origin records which discovery strategy produced a candidate
type Origin int

const (
	// DirectWalk candidates were found by listing the scripts root
	DirectWalk Origin = iota
	// PolicyReference candidates were named in a policy's scripts.ini
	PolicyReference
)

// String returns the name of the origin
func (o Origin) String() string {
	switch o {
	case DirectWalk:
		return "DirectWalk"
	case PolicyReference:
		return "PolicyReference"
	default:
		return "Unknown"
	}
}

// CandidatePath is a file on the share that may hold a logon script
type CandidatePath struct {
	Share  string
	Path   string
	Origin Origin
	// Source is the policy file that named a PolicyReference candidate
	Source string
	// Reference is the value as Source wrote it, before resolution
	Reference string
}

// Key identifies the file independent of origin. Shares and paths are case
// insensitive on Windows.
func (c CandidatePath) Key() string {
	return strings.ToLower(c.Share + "/" + remotefs.Clean(c.Path))
}

// String renders the candidate as a UNC like forward slash path
func (c CandidatePath) String() string {
	return "//" + c.Share + "/" + c.Path
}

// ScriptsRoot is where classic logon scripts live for domain. The NETLOGON
// share exposes the same directory.
func ScriptsRoot(domain string) string {
	return remotefs.Join(domain, "scripts")
}

// PoliciesRoot holds one directory per group policy object
func PoliciesRoot(domain string) string {
	return remotefs.Join(domain, "Policies")
}
