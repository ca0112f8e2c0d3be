package dieselxr

import "github.com/pkg/errors"

const (
	LeftHandAction  = "left_hand"
	RightHandAction = "right_hand"

	SimpleControllerProfile = "/interaction_profiles/khr/simple_controller"
)

// DefaultActionSet has one grip pose action per hand bound on the simple
// controller profile.
func DefaultActionSet() ActionSetDesc {
	return ActionSetDesc{
		Name:               "input",
		LocalizedName:      "input device actions",
		Priority:           0,
		InteractionProfile: SimpleControllerProfile,
		Poses: []PoseActionDesc{
			{Name: LeftHandAction, LocalizedName: "Left Hand Controller", Binding: "/user/hand/left/input/grip/pose"},
			{Name: RightHandAction, LocalizedName: "Right Hand Controller", Binding: "/user/hand/right/input/grip/pose"},
		},
	}
}

// HandPoses is the per frame input snapshot handed to the renderer.
type HandPoses struct {
	Left, Right           Pose
	LeftValid, RightValid bool
}

// Input syncs the action set once per rendered frame and locates both hands.
type Input struct {
	session Session
	set     ActionSet
	space   Space
	hands   HandPoses
}

// NewInput attaches desc to the session. Hands are located in space.
func NewInput(session Session, space Space, desc ActionSetDesc) (*Input, error) {
	set, err := session.AttachActionSet(desc)
	if err != nil {
		return nil, errors.Wrapf(err, "attach action set %s", desc.Name)
	}
	return &Input{session: session, set: set, space: space}, nil
}

// Sync updates the hand poses for the display time t.
func (in *Input) Sync(t Time) error {
	if err := in.session.SyncActions(in.set); err != nil {
		return errors.Wrap(err, "sync actions")
	}
	var err error
	in.hands.Left, in.hands.LeftValid, err = in.set.LocatePose(LeftHandAction, in.space, t)
	if err != nil {
		return errors.Wrap(err, "locate left hand")
	}
	in.hands.Right, in.hands.RightValid, err = in.set.LocatePose(RightHandAction, in.space, t)
	if err != nil {
		return errors.Wrap(err, "locate right hand")
	}
	return nil
}

func (in *Input) Hands() HandPoses {
	return in.hands
}

func (in *Input) Destroy() {
	if in.set != nil {
		in.set.Destroy()
		in.set = nil
	}
}
