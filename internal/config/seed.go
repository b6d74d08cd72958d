package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedFile describes bootstrap users and VBUs loaded by `canvas seed`.
type SeedFile struct {
	Users []SeedUser `yaml:"users"`
	VBUs  []SeedVBU  `yaml:"vbus"`
}

type SeedUser struct {
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// SeedVBU references its GM (and optional group leader) by email.
type SeedVBU struct {
	Name             string `yaml:"name"`
	GMEmail          string `yaml:"gm_email"`
	GroupLeaderEmail string `yaml:"group_leader_email"`
	ProductName      string `yaml:"product_name"`
	LifecycleLane    string `yaml:"lifecycle_lane"`
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses and validates seed YAML.
func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	emails := make(map[string]bool, len(seed.Users))
	for i, u := range seed.Users {
		email := strings.ToLower(strings.TrimSpace(u.Email))
		if email == "" {
			return nil, fmt.Errorf("user %d: email is required", i)
		}
		if u.Password == "" {
			return nil, fmt.Errorf("user %s: password is required", email)
		}
		seed.Users[i].Email = email
		emails[email] = true
	}
	for _, v := range seed.VBUs {
		if strings.TrimSpace(v.Name) == "" {
			return nil, fmt.Errorf("vbu: name is required")
		}
		if v.GMEmail == "" {
			return nil, fmt.Errorf("vbu %s: gm_email is required", v.Name)
		}
	}
	return &seed, nil
}
