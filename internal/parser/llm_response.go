package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"smart-ats/internal/types"
)

// flexText 接受字符串、数字或字符串数组
type flexText string

func (t *flexText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = flexText(s)
	case '[':
		var items flexStrings
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*t = flexText(strings.Join(items, "; "))
	default:
		*t = flexText(string(data))
	}
	return nil
}

// flexStrings 接受字符串数组或逗号分隔的字符串
type flexStrings []string

func (s *flexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = []string{}
		return nil
	}
	if data[0] == '"' {
		var joined string
		if err := json.Unmarshal(data, &joined); err != nil {
			return err
		}
		out := []string{}
		for _, part := range strings.Split(joined, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*s = out
		return nil
	}
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item == nil {
			continue
		}
		out = append(out, strings.TrimSpace(fmt.Sprint(item)))
	}
	*s = out
	return nil
}

// resumeResponse 简历解析的原始结构，字段类型宽松
type resumeResponse struct {
	Name           flexText             `json:"name"`
	Email          flexText             `json:"email"`
	Phone          flexText             `json:"phone"`
	LinkedIn       flexText             `json:"linkedin"`
	Location       flexText             `json:"location"`
	Summary        flexText             `json:"summary"`
	Skills         flexStrings          `json:"skills"`
	Experience     []experienceResponse `json:"experience"`
	Projects       []projectResponse    `json:"projects"`
	Education      []educationResponse  `json:"education"`
	Certifications flexStrings          `json:"certifications"`
	Languages      flexStrings          `json:"languages"`
}

type experienceResponse struct {
	Company          flexText    `json:"company"`
	JobTitle         flexText    `json:"job_title"`
	Duration         flexText    `json:"duration"`
	Location         flexText    `json:"location"`
	Responsibilities flexStrings `json:"responsibilities"`
}

type projectResponse struct {
	Name         flexText    `json:"name"`
	Description  flexText    `json:"description"`
	Technologies flexStrings `json:"technologies"`
	Highlights   flexStrings `json:"highlights"`
}

type educationResponse struct {
	Institution    flexText `json:"institution"`
	Degree         flexText `json:"degree"`
	FieldOfStudy   flexText `json:"field_of_study"`
	GraduationDate flexText `json:"graduation_date"`
	GPA            flexText `json:"gpa"`
}

func (r *resumeResponse) toResume() *types.ParsedResume {
	out := &types.ParsedResume{
		Name:           string(r.Name),
		Email:          string(r.Email),
		Phone:          string(r.Phone),
		LinkedIn:       string(r.LinkedIn),
		Location:       string(r.Location),
		Summary:        string(r.Summary),
		Skills:         r.Skills,
		Certifications: r.Certifications,
		Languages:      r.Languages,
	}
	for _, e := range r.Experience {
		out.Experience = append(out.Experience, types.ExperienceEntry{
			Company:          string(e.Company),
			JobTitle:         string(e.JobTitle),
			Duration:         string(e.Duration),
			Location:         string(e.Location),
			Responsibilities: e.Responsibilities,
		})
	}
	for _, p := range r.Projects {
		out.Projects = append(out.Projects, types.ProjectEntry{
			Name:         string(p.Name),
			Description:  string(p.Description),
			Technologies: p.Technologies,
			Highlights:   p.Highlights,
		})
	}
	for _, e := range r.Education {
		out.Education = append(out.Education, types.EducationEntry{
			Institution:    string(e.Institution),
			Degree:         string(e.Degree),
			FieldOfStudy:   string(e.FieldOfStudy),
			GraduationDate: string(e.GraduationDate),
			GPA:            string(e.GPA),
		})
	}
	return out.Normalize()
}

// gapResponse 差距分析的原始结构
type gapResponse struct {
	JDKeywords                 flexStrings `json:"jd_keywords"`
	MatchedSkills              flexStrings `json:"matched_skills"`
	MissingKeywords            flexStrings `json:"missing_keywords"`
	WeakSections               flexStrings `json:"weak_sections"`
	ImprovementRecommendations flexStrings `json:"improvement_recommendations"`
	PrioritySkills             flexStrings `json:"priority_skills"`
}

func (g *gapResponse) toGap() *types.GapAnalysis {
	return (&types.GapAnalysis{
		JDKeywords:                 g.JDKeywords,
		MatchedSkills:              g.MatchedSkills,
		MissingKeywords:            g.MissingKeywords,
		WeakSections:               g.WeakSections,
		ImprovementRecommendations: g.ImprovementRecommendations,
		PrioritySkills:             g.PrioritySkills,
	}).Normalize()
}
