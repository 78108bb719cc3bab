package roster

// Role is what the caller is allowed to do.
type Role string

const (
	RoleWorker  Role = "worker"
	RoleManager Role = "manager"
	RoleSystem  Role = "system"
)

// Session is the caller context passed explicitly into every aggregation,
// reallocation and approval call. There is no ambient "current user".
type Session struct {
	ActorID WorkerID
	Role    Role
}

func ManagerSession(id WorkerID) Session { return Session{ActorID: id, Role: RoleManager} }
func WorkerSession(id WorkerID) Session  { return Session{ActorID: id, Role: RoleWorker} }

// SystemSession is used by scheduled or internal runs.
func SystemSession() Session { return Session{ActorID: "system", Role: RoleSystem} }

// CanManage reports whether the session may act on other workers' records.
func (s Session) CanManage() bool { return s.Role == RoleManager || s.Role == RoleSystem }

// CanView reports whether the session may read the given worker's records.
func (s Session) CanView(w WorkerID) bool { return s.CanManage() || s.ActorID == w }

// RequireManager returns ErrForbidden unless the session can manage.
func (s Session) RequireManager(action string) error {
	if s.CanManage() {
		return nil
	}
	return &ForbiddenError{ActorID: s.ActorID, Action: action}
}

// ForbiddenError reports an action outside the session's role.
type ForbiddenError struct {
	ActorID WorkerID
	Action  string
}

func (e *ForbiddenError) Error() string {
	return "actor " + string(e.ActorID) + " may not " + e.Action
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }
