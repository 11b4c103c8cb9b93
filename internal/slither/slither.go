package slither

import (
	"fmt"
	"math"

	"github.com/siohaza/slither/internal/geom"
)

type SpeedModel string

const (
	SpeedModelCbrt   SpeedModel = "cbrt"
	SpeedModelLinear SpeedModel = "linear"
)

func ParseSpeedModel(s string) (SpeedModel, error) {
	switch SpeedModel(s) {
	case SpeedModelCbrt, "":
		return SpeedModelCbrt, nil
	case SpeedModelLinear:
		return SpeedModelLinear, nil
	default:
		return "", fmt.Errorf("unknown speed model %q", s)
	}
}

// Tuning holds the movement parameters shared by every slither in a world.
type Tuning struct {
	SpeedCoef         float32
	SpeedModel        SpeedModel
	MaxChangeDirSpeed float32 // radians per second
	BoostLossRate     float32 // fraction of mass burned per second while boosting
	MinBoostMass      float32
}

func DefaultTuning() Tuning {
	return Tuning{
		SpeedCoef:         600,
		SpeedModel:        SpeedModelCbrt,
		MaxChangeDirSpeed: 4,
		BoostLossRate:     0.05,
		MinBoostMass:      50,
	}
}

type Slither struct {
	Color    geom.Color
	Boost    bool
	Nickname string
	Body     *Body

	tuning Tuning
}

func New(tuning Tuning, color geom.Color, head geom.Pos2, dir, mass float32, nickname string) *Slither {
	return &Slither{
		Color:    color,
		Nickname: nickname,
		Body:     NewBody(head, dir, mass),
		tuning:   tuning,
	}
}

func (s *Slither) Speed() float32 {
	mass := float64(s.Body.Mass())
	if mass < 1 {
		mass = 1
	}

	switch s.tuning.SpeedModel {
	case SpeedModelLinear:
		return s.tuning.SpeedCoef / float32(mass)
	default:
		return s.tuning.SpeedCoef / float32(math.Cbrt(mass))
	}
}

func (s *Slither) DoMove(dt float32) {
	s.Body.MoveOn(s.Speed() * dt)
}

// MoveBoosted moves at twice the speed and returns the burned mass.
func (s *Slither) MoveBoosted(dt float32) float32 {
	s.Body.MoveOn(2 * s.Speed() * dt)

	lost := s.tuning.BoostLossRate * s.Body.Mass() * dt
	s.Body.ChangeMassBy(-lost)

	return lost
}

// CanBoost reports whether a boost request is honoured this tick.
func (s *Slither) CanBoost() bool {
	return s.Boost && s.Body.Mass() > s.tuning.MinBoostMass
}

// ChangeDir applies one rate-limited turn toward dir scaled by dt seconds.
// It is called once per direction message; nothing carries over to later ticks.
func (s *Slither) ChangeDir(dir, dt float32) {
	s.Body.ChangeDir(dir, s.tuning.MaxChangeDirSpeed*dt)
}
