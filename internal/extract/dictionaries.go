package extract

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Dictionaries are the keyword lists the offline heuristic scans for.
// All entries are expected lowercase.
type Dictionaries struct {
	TechnicalSkills []string `yaml:"technical_skills"`
	SoftSkills      []string `yaml:"soft_skills"`
	ActionVerbs     []string `yaml:"action_verbs"`
}

// DefaultDictionaries returns the built-in keyword lists.
func DefaultDictionaries() Dictionaries {
	return Dictionaries{
		TechnicalSkills: []string{
			"python", "java", "javascript", "typescript", "c++", "c#", "ruby", "go", "rust",
			"react", "angular", "vue", "node.js", "express", "django", "flask", "spring",
			"aws", "azure", "gcp", "docker", "kubernetes", "jenkins", "gitlab", "github",
			"sql", "mysql", "postgresql", "mongodb", "redis", "elasticsearch",
			"machine learning", "deep learning", "tensorflow", "pytorch", "scikit-learn",
			"data science", "data analysis", "big data", "hadoop", "spark",
			"rest api", "graphql", "microservices", "agile", "scrum", "devops",
			"ci/cd", "git", "linux", "bash", "testing", "tdd", "unit testing",
		},
		SoftSkills: []string{
			"leadership", "communication", "teamwork", "problem-solving", "analytical",
			"critical thinking", "creativity", "adaptability", "time management",
			"collaboration", "interpersonal", "presentation", "negotiation",
			"decision making", "conflict resolution", "mentoring", "coaching",
		},
		ActionVerbs: []string{
			"achieved", "administered", "analyzed", "architected", "automated",
			"built", "collaborated", "coordinated", "created", "delivered",
			"designed", "developed", "directed", "engineered", "enhanced",
			"established", "executed", "generated", "implemented", "improved",
			"increased", "initiated", "integrated", "launched", "led",
			"maintained", "managed", "optimized", "organized", "performed",
			"planned", "produced", "programmed", "reduced", "redesigned",
			"resolved", "streamlined", "supported", "transformed", "upgraded",
		},
	}
}

// LoadDictionaries reads keyword lists from a YAML file. Lists missing from
// the file keep their built-in defaults.
func LoadDictionaries(path string) (Dictionaries, error) {
	dicts := DefaultDictionaries()

	data, err := os.ReadFile(path)
	if err != nil {
		return dicts, fmt.Errorf("read skills file: %w", err)
	}

	var overrides Dictionaries
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return dicts, fmt.Errorf("parse skills file: %w", err)
	}

	if len(overrides.TechnicalSkills) > 0 {
		dicts.TechnicalSkills = overrides.TechnicalSkills
	}
	if len(overrides.SoftSkills) > 0 {
		dicts.SoftSkills = overrides.SoftSkills
	}
	if len(overrides.ActionVerbs) > 0 {
		dicts.ActionVerbs = overrides.ActionVerbs
	}

	return dicts, nil
}
