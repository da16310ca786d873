package domain

import (
	"sort"
	"time"
)

// SessionListItemKind discriminates rows in the derived session list
type SessionListItemKind string

const (
	ItemHeader  SessionListItemKind = "header"
	ItemSession SessionListItemKind = "session"
)

// SessionListItem is one row of the derived session list view: either a
// project group header or a session belonging to the preceding header.
type SessionListItem struct {
	Kind    SessionListItemKind
	Title   string // header only: project path or synthetic bucket name
	Session *Session
}

// ActiveBucketTitle is the synthetic group that collects all currently
// active sessions regardless of project.
const ActiveBucketTitle = "Active"

// SessionListOptions controls the derived session list view
type SessionListOptions struct {
	HideInactive bool
	Now          time.Time
}

// BuildSessionList groups sessions by project path with a synthetic
// "Active" bucket on top. Online sessions appear both in the bucket and
// under their project group. A project header is only emitted when at
// least one of its sessions survives the visibility filter, so filtering
// never leaves a dangling header.
func BuildSessionList(sessions []*Session, opts SessionListOptions) []SessionListItem {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var active []*Session
	byProject := make(map[string][]*Session)
	var projects []string

	for _, session := range sessions {
		online := session.Presence(now) == PresenceOnline
		if online {
			active = append(active, session)
		}
		if opts.HideInactive && !online {
			continue
		}
		path := session.ProjectPath()
		if _, seen := byProject[path]; !seen {
			projects = append(projects, path)
		}
		byProject[path] = append(byProject[path], session)
	}

	sort.Strings(projects)

	var items []SessionListItem
	if len(active) > 0 {
		sortNewestFirst(active)
		items = append(items, SessionListItem{Kind: ItemHeader, Title: ActiveBucketTitle})
		for _, session := range active {
			items = append(items, SessionListItem{Kind: ItemSession, Session: session})
		}
	}
	for _, path := range projects {
		group := byProject[path]
		if len(group) == 0 {
			continue
		}
		sortNewestFirst(group)
		title := path
		if title == "" {
			title = "Other"
		}
		items = append(items, SessionListItem{Kind: ItemHeader, Title: title})
		for _, session := range group {
			items = append(items, SessionListItem{Kind: ItemSession, Session: session})
		}
	}
	return items
}

func sortNewestFirst(sessions []*Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
}
