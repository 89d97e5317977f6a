package prayer

import "time"

// Author is the public face of the request owner
type Author struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// View is a request as returned to one particular viewer
type View struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	IsAnonymous bool       `json:"isAnonymous"`
	Status      Status     `json:"status"`
	UserID      string     `json:"userId,omitempty"`
	User        Author     `json:"user"`
	IsOwner     bool       `json:"isOwner"`
	ModeratedAt *time.Time `json:"moderatedAt,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// CanRead applies the single record rule: owners and admins always, everyone
// else anything that was not rejected
func CanRead(viewer Viewer, req *Request) bool {
	if req == nil {
		return false
	}
	if viewer.Admin || req.OwnedBy(viewer.ID) {
		return true
	}
	return req.Status != StatusRejected
}

// CanEdit owners edit their own content
func CanEdit(viewer Viewer, req *Request) bool {
	return req.OwnedBy(viewer.ID)
}

// CanDelete owners and admins
func CanDelete(viewer Viewer, req *Request) bool {
	return viewer.Admin || req.OwnedBy(viewer.ID)
}

// Present masks the author of anonymous requests for anyone other than the
// owner or an admin
func Present(viewer Viewer, req *Request) View {
	owner := req.OwnedBy(viewer.ID)

	v := View{
		ID:          req.ID.String(),
		Title:       req.Title,
		Content:     req.Content,
		IsAnonymous: req.IsAnonymous,
		Status:      req.Status,
		IsOwner:     owner,
		ModeratedAt: req.ModeratedAt,
		CreatedAt:   req.CreatedAt,
		UpdatedAt:   req.UpdatedAt,
	}

	if req.IsAnonymous && !owner && !viewer.Admin {
		v.User = Author{Name: AnonymousName}
		return v
	}

	v.UserID = req.UserID.String()
	v.User = Author{ID: v.UserID}
	if req.User != nil {
		v.User.Name = req.User.Name
	}
	return v
}

// PresentAll maps Present over a page
func PresentAll(viewer Viewer, records []*Request) []View {
	out := make([]View, 0, len(records))
	for _, r := range records {
		out = append(out, Present(viewer, r))
	}
	return out
}
