package types

import "time"

// SectionType 表示重构模板中的章节类型
type SectionType string

const (
	// SectionHeader 姓名与联系方式
	SectionHeader SectionType = "HEADER"
	// SectionSummary 职业概述
	SectionSummary SectionType = "PROFESSIONAL SUMMARY"
	// SectionSkills 技能
	SectionSkills SectionType = "SKILLS"
	// SectionExperience 工作经历
	SectionExperience SectionType = "PROFESSIONAL EXPERIENCE"
	// SectionProjects 项目经历
	SectionProjects SectionType = "PROJECTS"
	// SectionEducation 教育经历
	SectionEducation SectionType = "EDUCATION"
	// SectionCertifications 证书
	SectionCertifications SectionType = "CERTIFICATIONS"
	// SectionLanguages 语言
	SectionLanguages SectionType = "LANGUAGES"
	// SectionUnknown 模板之外的内容
	SectionUnknown SectionType = "UNKNOWN"
)

// TemplateSections 重构输出中章节的固定顺序
var TemplateSections = []SectionType{
	SectionHeader,
	SectionSummary,
	SectionSkills,
	SectionExperience,
	SectionProjects,
	SectionEducation,
	SectionCertifications,
	SectionLanguages,
}

// Marker 返回章节的分隔行，例如 "=== SKILLS ==="
func (s SectionType) Marker() string {
	return "=== " + string(s) + " ==="
}

// ResumeSection 重构文本中的一个章节
type ResumeSection struct {
	Type  SectionType `json:"type"`
	Title string      `json:"title"`
	Lines []string    `json:"lines"`
}

// ExperienceEntry 工作经历条目
type ExperienceEntry struct {
	Company          string   `json:"company"`
	JobTitle         string   `json:"job_title"`
	Duration         string   `json:"duration"`
	Location         string   `json:"location"`
	Responsibilities []string `json:"responsibilities"`
}

// ProjectEntry 项目条目
type ProjectEntry struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies"`
	Highlights   []string `json:"highlights"`
}

// EducationEntry 教育条目
type EducationEntry struct {
	Institution    string `json:"institution"`
	Degree         string `json:"degree"`
	FieldOfStudy   string `json:"field_of_study"`
	GraduationDate string `json:"graduation_date"`
	GPA            string `json:"gpa"`
}

// ParsedResume 简历的结构化提取结果。
// 创建后作为只读事实来源，下游阶段只能重排或改写，不能引入其中不存在的内容。
type ParsedResume struct {
	Name           string            `json:"name"`
	Email          string            `json:"email"`
	Phone          string            `json:"phone"`
	LinkedIn       string            `json:"linkedin"`
	Location       string            `json:"location"`
	Summary        string            `json:"summary"`
	Skills         []string          `json:"skills"`
	Experience     []ExperienceEntry `json:"experience"`
	Projects       []ProjectEntry    `json:"projects"`
	Education      []EducationEntry  `json:"education"`
	Certifications []string          `json:"certifications"`
	Languages      []string          `json:"languages"`
}

// Normalize 把所有 nil 切片替换为空切片，保证序列化结果为 [] 而不是 null
func (r *ParsedResume) Normalize() *ParsedResume {
	if r == nil {
		return nil
	}
	r.Skills = nonNil(r.Skills)
	r.Certifications = nonNil(r.Certifications)
	r.Languages = nonNil(r.Languages)
	if r.Experience == nil {
		r.Experience = []ExperienceEntry{}
	}
	for i := range r.Experience {
		r.Experience[i].Responsibilities = nonNil(r.Experience[i].Responsibilities)
	}
	if r.Projects == nil {
		r.Projects = []ProjectEntry{}
	}
	for i := range r.Projects {
		r.Projects[i].Technologies = nonNil(r.Projects[i].Technologies)
		r.Projects[i].Highlights = nonNil(r.Projects[i].Highlights)
	}
	if r.Education == nil {
		r.Education = []EducationEntry{}
	}
	return r
}

// GapAnalysis 简历与JD的差距分析结果，只作为参考信息使用
type GapAnalysis struct {
	JDKeywords                 []string `json:"jd_keywords"`
	MatchedSkills              []string `json:"matched_skills"`
	MissingKeywords            []string `json:"missing_keywords"`
	WeakSections               []string `json:"weak_sections"`
	ImprovementRecommendations []string `json:"improvement_recommendations"`
	PrioritySkills             []string `json:"priority_skills"`
}

// NewEmptyGapAnalysis 返回所有字段为空切片的差距分析
func NewEmptyGapAnalysis() *GapAnalysis {
	return (&GapAnalysis{}).Normalize()
}

// Normalize 把 nil 切片替换为空切片
func (g *GapAnalysis) Normalize() *GapAnalysis {
	if g == nil {
		return nil
	}
	g.JDKeywords = nonNil(g.JDKeywords)
	g.MatchedSkills = nonNil(g.MatchedSkills)
	g.MissingKeywords = nonNil(g.MissingKeywords)
	g.WeakSections = nonNil(g.WeakSections)
	g.ImprovementRecommendations = nonNil(g.ImprovementRecommendations)
	g.PrioritySkills = nonNil(g.PrioritySkills)
	return g
}

// IsEmpty 判断差距分析是否没有任何内容
func (g *GapAnalysis) IsEmpty() bool {
	if g == nil {
		return true
	}
	return len(g.JDKeywords) == 0 && len(g.MatchedSkills) == 0 && len(g.MissingKeywords) == 0 &&
		len(g.WeakSections) == 0 && len(g.ImprovementRecommendations) == 0 && len(g.PrioritySkills) == 0
}

// CachedSession 会话缓存条目
type CachedSession struct {
	CVText         string        `json:"cv_text"`
	ParsedResume   *ParsedResume `json:"parsed_resume"`
	FileHash       string        `json:"file_hash"`
	CreatedAt      time.Time     `json:"created_at"`
	JobDescription string        `json:"job_description"`
	JobPosition    string        `json:"job_position"`
}

// ATSAnalysis ATS评估结果，字段名与前端约定保持一致
type ATSAnalysis struct {
	JDMatch         string   `json:"JD Match"`
	MissingKeywords []string `json:"MissingKeywords"`
	KeyStrength     string   `json:"KeyStrength"`
	Recommendations string   `json:"Recommendations"`
	ProfileSummary  string   `json:"Profile Summary"`
	ExperienceMatch string   `json:"ExperienceMatch"`
	SkillsMatch     string   `json:"SkillsMatch"`
	EducationMatch  string   `json:"EducationMatch"`
	Filename        string   `json:"filename,omitempty"`
	FileType        string   `json:"file_type,omitempty"`
}

// ValidationResult 重构结果的启发式校验
type ValidationResult struct {
	Valid                   bool     `json:"valid"`
	Warnings                []string `json:"warnings"`
	OriginalName            string   `json:"original_name"`
	OriginalEmail           string   `json:"original_email"`
	OriginalSkillsCount     int      `json:"original_skills_count"`
	OriginalExperienceCount int      `json:"original_experience_count"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
