package app

import (
	"strings"

	"github.com/vishwadoshi-19/zense-staff/internal/domain"
)

const (
	PathRoot       = "/"
	PathSignIn     = "/sign-in"
	PathOnboarding = "/onboarding"
	PathJobs       = "/jobs"
	PathDailyTasks = "/daily-tasks"
)

// RouteAction is what a client should do with a navigation.
type RouteAction string

const (
	RouteAllow    RouteAction = "allow"
	RouteRedirect RouteAction = "redirect"
	RouteWait     RouteAction = "wait"
)

// RouteInput is everything the guard looks at.
type RouteInput struct {
	Loading       bool
	HasIdentity   bool
	Status        domain.Lifecycle
	HasOngoingJob bool
	Path          string
}

// RouteDecision is the guard's answer. Target is set only for redirects.
type RouteDecision struct {
	Action RouteAction `json:"action"`
	Target string      `json:"target,omitempty"`
}

type pathClass int

const (
	classProtected pathClass = iota
	classPublic
	classOnboarding
)

func classifyPath(path string) pathClass {
	p := strings.TrimSpace(path)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		p = PathRoot
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	switch {
	case p == PathRoot, p == PathSignIn, strings.HasPrefix(p, PathSignIn+"/"):
		return classPublic
	case p == PathOnboarding, strings.HasPrefix(p, PathOnboarding+"/"):
		return classOnboarding
	default:
		return classProtected
	}
}

// RouteInputFor derives guard input from a resolved session.
func RouteInputFor(s Session, path string) RouteInput {
	in := RouteInput{
		Loading:     s.Loading,
		HasIdentity: s.Authenticated && s.Identity != nil,
		Status:      domain.StatusUnregistered,
		Path:        path,
	}
	if s.Status != nil {
		in.Status = s.Status.Status
		in.HasOngoingJob = s.Status.HasOngoingJob
	}
	return in
}

// HomePath is where an active staff member lands.
func HomePath(hasOngoingJob bool) string {
	if hasOngoingJob {
		return PathDailyTasks
	}
	return PathJobs
}

// DecideRoute gates navigation. It never redirects while the session is
// still loading and never redirects to the path being requested.
func DecideRoute(in RouteInput) RouteDecision {
	if in.Loading {
		return RouteDecision{Action: RouteWait}
	}

	class := classifyPath(in.Path)

	var target string
	switch {
	case !in.HasIdentity:
		if class != classPublic {
			target = PathSignIn
		}
	case !in.Status.Active():
		if class != classOnboarding {
			target = PathOnboarding
		}
	default:
		if class != classProtected {
			target = HomePath(in.HasOngoingJob)
		}
	}

	if target == "" {
		return RouteDecision{Action: RouteAllow}
	}
	return RouteDecision{Action: RouteRedirect, Target: target}
}
