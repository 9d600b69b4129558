package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/certspin/reelcore/pkg/engine"
)

// Profile is a jurisdiction-specific configuration profile. The RTP window
// is the regulator's certified band for this jurisdiction: a host refuses
// to register an engine whose certified RTP falls outside it.
type Profile struct {
	Name       string `yaml:"name" json:"name"`
	Code       string `yaml:"code" json:"code"`
	Production bool   `yaml:"production" json:"production"`

	RTPFloor   float64 `yaml:"rtp_floor" json:"rtp_floor"`
	RTPCeiling float64 `yaml:"rtp_ceiling" json:"rtp_ceiling"`

	// MaxBet is an exact decimal string; empty means no jurisdiction
	// ceiling.
	MaxBet string `yaml:"max_bet,omitempty" json:"max_bet,omitempty"`

	AuditRetentionDays int `yaml:"audit_retention_days" json:"audit_retention_days"`
}

// Validate checks the profile's internal consistency.
func (p *Profile) Validate() error {
	if p.Code == "" {
		return errors.New("config: profile code is empty")
	}
	if p.RTPFloor <= 0 || p.RTPFloor > 100 {
		return fmt.Errorf("config: profile %s: rtp floor %v outside (0, 100]", p.Code, p.RTPFloor)
	}
	if p.RTPCeiling < p.RTPFloor || p.RTPCeiling > 100 {
		return fmt.Errorf("config: profile %s: rtp ceiling %v outside [floor, 100]", p.Code, p.RTPCeiling)
	}
	if p.MaxBet != "" {
		maxBet, err := decimal.NewFromString(p.MaxBet)
		if err != nil {
			return fmt.Errorf("config: profile %s: max bet %q: %w", p.Code, p.MaxBet, err)
		}
		if maxBet.Sign() <= 0 {
			return fmt.Errorf("config: profile %s: max bet %s is not positive", p.Code, p.MaxBet)
		}
	}
	if p.AuditRetentionDays < 0 {
		return fmt.Errorf("config: profile %s: negative audit retention", p.Code)
	}
	return nil
}

// CheckEngine verifies an engine's certified metadata against the
// jurisdiction's band. Run it before registration.
func (p *Profile) CheckEngine(info engine.Info) error {
	if err := info.Validate(); err != nil {
		return err
	}
	if info.RTP < p.RTPFloor || info.RTP > p.RTPCeiling {
		return fmt.Errorf("config: engine %s rtp %v outside jurisdiction %s band [%v, %v]",
			info.Code, info.RTP, p.Code, p.RTPFloor, p.RTPCeiling)
	}
	return nil
}

// CheckBet verifies a bet against the jurisdiction ceiling. A profile
// without a ceiling accepts any positive bet.
func (p *Profile) CheckBet(bet decimal.Decimal) error {
	if bet.Sign() <= 0 {
		return fmt.Errorf("config: bet %s is not positive", bet)
	}
	if p.MaxBet == "" {
		return nil
	}
	maxBet, err := decimal.NewFromString(p.MaxBet)
	if err != nil {
		return fmt.Errorf("config: profile %s: max bet %q: %w", p.Code, p.MaxBet, err)
	}
	if bet.GreaterThan(maxBet) {
		return fmt.Errorf("config: bet %s above jurisdiction %s ceiling %s", bet, p.Code, maxBet)
	}
	return nil
}

// LoadProfile loads and validates the profile for a jurisdiction code,
// searching profilesDir for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*Profile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load profile %q: %w", code, err)
	}
	return parseProfile(data, code)
}

// LoadAllProfiles loads every profile_*.yaml under profilesDir, keyed by
// jurisdiction code.
func LoadAllProfiles(profilesDir string) (map[string]*Profile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*Profile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}

		base := filepath.Base(path)
		code := strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		profile, err := parseProfile(data, code)
		if err != nil {
			return nil, err
		}
		profiles[profile.Code] = profile
	}
	return profiles, nil
}

func parseProfile(data []byte, code string) (*Profile, error) {
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("config: parse profile %q: %w", code, err)
	}
	if profile.Code == "" {
		profile.Code = code
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &profile, nil
}
