package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"smart-ats/internal/types"
)

const parsePromptTemplate = `Extract ALL information from this resume into structured JSON. Extract ONLY what is explicitly stated.

Resume:
%s

Return ONLY valid JSON:
{
    "name": "Full Name",
    "email": "email or empty string",
    "phone": "phone or empty string",
    "linkedin": "linkedin url or empty string",
    "location": "location or empty string",
    "summary": "professional summary or empty string",
    "skills": ["Skill1", "Skill2"],
    "experience": [
        {
            "company": "Company",
            "job_title": "Title",
            "duration": "Jan 2020 - Present",
            "location": "City, Country",
            "responsibilities": ["Resp 1", "Resp 2"]
        }
    ],
    "projects": [
        {
            "name": "Project Name",
            "description": "Brief description",
            "technologies": ["Tech1"],
            "highlights": ["Achievement 1"]
        }
    ],
    "education": [
        {
            "institution": "University",
            "degree": "Degree",
            "field_of_study": "Field",
            "graduation_date": "2020",
            "gpa": "GPA or empty string"
        }
    ],
    "certifications": ["Cert1"],
    "languages": ["English"]
}`

// BuildParsePrompt 构建简历结构化提取提示词
func BuildParsePrompt(resumeText string) string {
	return fmt.Sprintf(parsePromptTemplate, resumeText)
}

const gapPromptTemplate = `You are an expert ATS (Applicant Tracking System) analyst.

Analyze the gap between this resume and job description for the position: %s

**Parsed Resume Data:**
%s

**Job Description:**
%s

**Your Task:**
1. Identify keywords from the JD that are PRESENT in the resume (matched)
2. Identify keywords from the JD that are MISSING from the resume
3. Identify which sections of the resume are weak or need improvement
4. Provide specific recommendations for how to optimize the resume
5. List the priority skills the JD is looking for

**IMPORTANT:**
- "Missing" means truly absent from the resume
- Some skills may be present but weakly worded - these go in weak_sections, not missing_keywords
- Some skills may be implicit - these are matched, not missing

**Return ONLY valid JSON:**
` + gapJSONSchema + `

Return ONLY the JSON, no explanation.`

const gapJSONSchema = `{
    "jd_keywords": ["keyword1", "keyword2"],
    "matched_skills": ["skill from resume that matches JD"],
    "missing_keywords": ["truly absent skills"],
    "weak_sections": ["sections that need improvement"],
    "improvement_recommendations": ["specific actionable recommendations"],
    "priority_skills": ["most important skills from JD"]
}`

// BuildGapPrompt 构建差距分析提示词
func BuildGapPrompt(resume *types.ParsedResume, jobDescription, jobPosition string) string {
	return fmt.Sprintf(gapPromptTemplate, jobPosition, resumeJSON(resume), jobDescription)
}

const atsPromptTemplate = `Hey, act like a skilled and experienced ATS (Application Tracking System) with deep understanding of both technical and non-technical fields.
Your task is to evaluate the resume based on the given job description for the job position "%[1]s".
You must consider the job market is very competitive and provide the best assistance for improving resumes.
Assign the percentage matching based on the job description and list the missing keywords with high accuracy.
Evaluate the resume while ignoring name, gender, and age.

**Requirements:**
- Assign a JD match percentage (accurate score).
- Highlight missing skills (only relevant ones).
- Extract Key Strengths and provide Recommendations.
- Ensure the response **always contains** a "Profile Summary".
- Provide weighted scoring breakdown.

**Input:**
Job Position: %[1]s
Resume: %[2]s
Job Description: %[3]s

**Return Response in Strict JSON Format:**
{
    "JD Match": "XX%%",
    "MissingKeywords": ["Skill1", "Skill2", "Skill3"],
    "KeyStrength": "Brief summary of key strengths",
    "Recommendations": "Brief recommendations for improvement",
    "Profile Summary": "Concise evaluation of strengths and gaps.",
    "ExperienceMatch": "XX%%",
    "SkillsMatch": "XX%%",
    "EducationMatch": "XX%%"
}`

// BuildATSPrompt 构建 ATS 评估提示词
func BuildATSPrompt(cvText, jobDescription, jobPosition string) string {
	return fmt.Sprintf(atsPromptTemplate, jobPosition, cvText, jobDescription)
}

const reconstructSystemPrompt = `You are an expert Resume Tailoring Engine operating under a STRICT NO-HALLUCINATION policy.

Your job is to REWRITE the candidate's resume so that it is clearly aligned with the Job Description (JD), using ONLY facts already present in the original resume data.

YOU MAY:
- Rephrase bullet points with strong action verbs and JD terminology, when the underlying fact is already in the resume
- Reorder skills, bullets and projects so the most JD-relevant items come first
- Emphasize experience and technologies that match the JD
- Drop content that is irrelevant to the target role
- Write a 2-3 sentence professional summary built only from the resume's own facts

YOU MUST NOT:
- Add any skill, tool, technology or language that does not appear in the original resume data
- Invent employers, job titles, projects, degrees, certifications or dates
- Invent metrics, percentages, team sizes or any other numbers
- Change the candidate's name or contact details

ABOUT THE GAP ANALYSIS:
Keywords listed as "missing" below must NOT be added as new claims. Treat them as areas where the resume
may already contain related experience that is under-expressed: surface that existing experience more clearly,
and if nothing in the resume supports a keyword, leave it out.`

// BuildReconstructPrompt 构建严格模式的重构提示词，gap 为空时说明未做差距分析
func BuildReconstructPrompt(resume *types.ParsedResume, jobDescription, jobPosition string, gap *types.GapAnalysis) string {
	var b strings.Builder
	b.WriteString(reconstructSystemPrompt)
	b.WriteString("\n\nORIGINAL RESUME DATA (the only allowed source of facts):\n")
	b.WriteString(resumeJSON(resume))
	fmt.Fprintf(&b, "\n\nTARGET JOB:\nPosition: %s\n\nJob Description:\n%s\n", jobPosition, jobDescription)

	b.WriteString("\nGAP ANALYSIS RESULTS:\n")
	if gap.IsEmpty() {
		b.WriteString("Not available. Align the resume with the JD directly.\n")
	} else {
		fmt.Fprintf(&b, "\nSkills already in the resume (keep and highlight):\n%s\n", joinOrNone(gap.MatchedSkills, ", "))
		fmt.Fprintf(&b, "\nUnder-expressed keywords (surface ONLY if the resume already supports them):\n%s\n", joinOrNone(gap.MissingKeywords, ", "))
		fmt.Fprintf(&b, "\nWeak sections:\n%s\n", joinOrNone(gap.WeakSections, ", "))
		fmt.Fprintf(&b, "\nPriority skills for this JD:\n%s\n", joinOrNone(gap.PrioritySkills, ", "))
		fmt.Fprintf(&b, "\nImprovement recommendations (apply without adding new facts):\n%s\n", bulletsOrNone(gap.ImprovementRecommendations))
	}

	b.WriteString("\n")
	b.WriteString(templateStructure())
	fmt.Fprintf(&b, "\nOutput the complete tailored resume for the %q role in exactly the format above, starting with the line %s. "+
		"Do not add any commentary before or after the resume.", jobPosition, types.SectionHeader.Marker())
	return b.String()
}

// FastGapMarker 合并调用中差距分析部分的起始标记
const FastGapMarker = "=== GAP ANALYSIS ==="

// BuildFastReconstructPrompt 构建快速模式的合并提示词：同一次调用先输出差距分析 JSON，再输出重构后的简历
func BuildFastReconstructPrompt(resume *types.ParsedResume, jobDescription, jobPosition string) string {
	var b strings.Builder
	b.WriteString(reconstructSystemPrompt)
	b.WriteString("\n\nORIGINAL RESUME DATA (the only allowed source of facts):\n")
	b.WriteString(resumeJSON(resume))
	fmt.Fprintf(&b, "\n\nTARGET JOB:\nPosition: %s\n\nJob Description:\n%s\n", jobPosition, jobDescription)

	b.WriteString("\nSTEP 1 - GAP ANALYSIS:\n")
	b.WriteString("Compare the resume with the JD. \"Missing\" means truly absent from the resume; " +
		"skills that are present but weakly worded belong in weak_sections. Use this JSON structure:\n")
	b.WriteString(gapJSONSchema)
	b.WriteString("\n\nSTEP 2 - TAILORED RESUME:\n")
	b.WriteString("Rewrite the resume using your gap analysis under the rules above.\n\n")
	b.WriteString(templateStructure())

	fmt.Fprintf(&b, "\nRespond with exactly two parts in this order:\n"+
		"1. The line %s followed by the gap analysis JSON object.\n"+
		"2. The complete tailored resume for the %q role, starting with the line %s, in exactly the format above.\n"+
		"Do not add any other commentary.", FastGapMarker, jobPosition, types.SectionHeader.Marker())
	return b.String()
}

func templateStructure() string {
	var b strings.Builder
	b.WriteString("OUTPUT FORMAT (follow exactly, omit a section's content but keep its marker if the resume has nothing for it):\n\n")
	for _, s := range types.TemplateSections {
		b.WriteString(s.Marker())
		b.WriteByte('\n')
		b.WriteString(sectionHint(s))
		b.WriteString("\n\n")
	}
	return b.String()
}

func sectionHint(s types.SectionType) string {
	switch s {
	case types.SectionHeader:
		return "[Full Name]\n[Email] | [Phone] | [LinkedIn] | [Location]"
	case types.SectionSummary:
		return "[2-3 sentences targeting the role, using only facts from the resume]"
	case types.SectionSkills:
		return "**[Category]:** [skills from the original resume, JD-relevant first]"
	case types.SectionExperience:
		return "[Job Title] | [Company Name]\n[Duration] | [Location]\n• [Action verb] [rephrased responsibility]"
	case types.SectionProjects:
		return "[Project Name]\nTechnologies: [technologies from the original resume]\n• [Rephrased highlight]"
	case types.SectionEducation:
		return "[Degree] in [Field]\n[Institution] | [Graduation Date]"
	case types.SectionCertifications:
		return "[Certifications from the original resume]"
	case types.SectionLanguages:
		return "[Languages from the original resume]"
	default:
		return ""
	}
}

func resumeJSON(resume *types.ParsedResume) string {
	if resume == nil {
		resume = &types.ParsedResume{}
	}
	data, err := json.MarshalIndent(resume, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func joinOrNone(items []string, sep string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, sep)
}

func bulletsOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}
