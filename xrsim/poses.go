package xrsim

import (
	"strings"

	"github.com/andewx/dieselxr"
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Space implements dieselxr.Space.
type Space struct {
	kind   dieselxr.ReferenceSpaceType
	origin dieselxr.Pose
}

func (sp *Space) Type() dieselxr.ReferenceSpaceType { return sp.kind }
func (sp *Space) Destroy()                          {}

// headFov is the per eye field of view, wider on the outer side.
var headFov = dieselxr.Fov{AngleLeft: -0.942, AngleRight: 0.698, AngleUp: 0.768, AngleDown: -0.855}

// head sways slowly around the vertical axis, one period every four seconds.
const swayPeriod = 4e9

func (s *Session) headPose(space *Space, t dieselxr.Time) dieselxr.Pose {
	yaw := 0.15 * math32.Sin(2*math32.Pi*float32(t%swayPeriod)/swayPeriod)
	p := yawPose(yaw)
	switch space.kind {
	case dieselxr.SpaceView:
		return dieselxr.IdentityPose
	case dieselxr.SpaceStage:
		p.Position = [3]float32{0, s.rt.opts.EyeHeight, 0}
	}
	p.Position[0] -= space.origin.Position[0]
	p.Position[1] -= space.origin.Position[1]
	p.Position[2] -= space.origin.Position[2]
	return p
}

func yawPose(yaw float32) dieselxr.Pose {
	half := yaw / 2
	return dieselxr.Pose{Orientation: [4]float32{0, math32.Sin(half), 0, math32.Cos(half)}}
}

// offset moves p by dx along its own x axis.
func offset(p dieselxr.Pose, dx float32) dieselxr.Pose {
	// yaw only orientation: angle from the y and w components
	yaw := 2 * math32.Atan2(p.Orientation[1], p.Orientation[3])
	p.Position[0] += dx * math32.Cos(yaw)
	p.Position[2] -= dx * math32.Sin(yaw)
	return p
}

// LocateViews returns the left and right eye, half the IPD either side of the
// head. The right eye mirrors the left field of view.
func (s *Session) LocateViews(space dieselxr.Space, t dieselxr.Time) ([]dieselxr.View, error) {
	sp, ok := space.(*Space)
	if !ok {
		return nil, errors.Errorf("xrsim: space %T not created by this session", space)
	}
	head := s.headPose(sp, t)
	half := s.rt.opts.IPD / 2
	right := headFov
	right.AngleLeft, right.AngleRight = -headFov.AngleRight, -headFov.AngleLeft
	return []dieselxr.View{
		{Pose: offset(head, -half), Fov: headFov},
		{Pose: offset(head, half), Fov: right},
	}, nil
}

// ActionSet implements dieselxr.ActionSet for grip pose actions.
type ActionSet struct {
	session *Session
	desc    dieselxr.ActionSetDesc
	poses   map[string]dieselxr.PoseActionDesc
	synced  bool
}

var _ dieselxr.ActionSet = (*ActionSet)(nil)

// AttachActionSet accepts one action set per session with bindings under
// /user/hand.
func (s *Session) AttachActionSet(desc dieselxr.ActionSetDesc) (dieselxr.ActionSet, error) {
	if s.actionSet != nil {
		return nil, errors.Wrap(ErrCallOrder, "action set already attached")
	}
	if desc.Name == "" {
		return nil, errors.New("xrsim: action set needs a name")
	}
	set := &ActionSet{session: s, desc: desc, poses: map[string]dieselxr.PoseActionDesc{}}
	for _, p := range desc.Poses {
		if _, dup := set.poses[p.Name]; dup {
			return nil, errors.Errorf("xrsim: duplicate action %q", p.Name)
		}
		if !strings.HasPrefix(p.Binding, "/user/hand/") {
			return nil, errors.Errorf("xrsim: action %q binding %q is not a hand path", p.Name, p.Binding)
		}
		set.poses[p.Name] = p
	}
	s.actionSet = set
	return set, nil
}

func (s *Session) SyncActions(set dieselxr.ActionSet) error {
	as, ok := set.(*ActionSet)
	if !ok || as != s.actionSet {
		return errors.New("xrsim: action set not attached to this session")
	}
	// input is only delivered to a focused session
	as.synced = s.state == dieselxr.RuntimeFocused
	return nil
}

// LocatePose places each hand below and in front of the head. Poses are
// untracked until the first sync while focused.
func (a *ActionSet) LocatePose(action string, space dieselxr.Space, t dieselxr.Time) (dieselxr.Pose, bool, error) {
	p, ok := a.poses[action]
	if !ok {
		return dieselxr.Pose{}, false, errors.Errorf("xrsim: unknown action %q", action)
	}
	sp, ok := space.(*Space)
	if !ok {
		return dieselxr.Pose{}, false, errors.Errorf("xrsim: space %T not created by this session", space)
	}
	if !a.synced {
		return dieselxr.Pose{}, false, nil
	}
	head := a.session.headPose(sp, t)
	side := float32(0.2)
	if strings.HasPrefix(p.Binding, "/user/hand/left/") {
		side = -side
	}
	hand := offset(head, side)
	hand.Position[1] -= 0.5
	hand.Position[2] -= 0.3
	return hand, true, nil
}

func (a *ActionSet) Destroy() {
	if a.session.actionSet == a {
		a.session.actionSet = nil
	}
}
