package certificates

import (
	"context"
	"math"

	"coursecert-backend/internal/domain"

	"github.com/google/uuid"
)

// DefaultNonVideoLessonMinutes is the flat estimate for any lesson that is not a video.
// It is a heuristic, not a measured duration.
const DefaultNonVideoLessonMinutes = 5

// Duration is a course's estimated length.
type Duration struct {
	Minutes int
	Hours   float64
}

// Calculator derives course duration and learner grade from marketplace data.
// It has no side effects; callers decide when to persist.
type Calculator struct {
	Marketplace           Marketplace
	NonVideoLessonMinutes int
}

// CourseDuration sums lesson estimates across every module of the course.
// Returns nil when the course has no lessons or the total is zero.
func (c *Calculator) CourseDuration(ctx context.Context, courseID uuid.UUID) (*Duration, error) {
	lessons, err := c.Marketplace.ListLessonsForCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return SumDuration(lessons, c.nonVideoMinutes()), nil
}

// CourseGrade averages assessment scores for the enrollment. Returns nil when nothing is scored.
func (c *Calculator) CourseGrade(ctx context.Context, enrollmentID uuid.UUID) (*float64, error) {
	progress, err := c.Marketplace.ListScoredProgressForEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	return AverageAssessmentScore(progress), nil
}

func (c *Calculator) nonVideoMinutes() int {
	if c.NonVideoLessonMinutes > 0 {
		return c.NonVideoLessonMinutes
	}
	return DefaultNonVideoLessonMinutes
}

// SumDuration: video lessons contribute round(seconds/60), every other lesson nonVideoMinutes.
func SumDuration(lessons []LessonInfo, nonVideoMinutes int) *Duration {
	total := 0
	for _, l := range lessons {
		if l.Type == domain.LessonTypeVideo {
			if l.DurationSeconds != nil {
				total += int(math.Round(float64(*l.DurationSeconds) / 60))
			}
			continue
		}
		total += nonVideoMinutes
	}
	if total <= 0 {
		return nil
	}
	return &Duration{Minutes: total, Hours: round2(float64(total) / 60)}
}

// AverageAssessmentScore ignores non-assessment lessons and unscored records.
func AverageAssessmentScore(progress []ScoredProgress) *float64 {
	var sum float64
	n := 0
	for _, p := range progress {
		if p.LessonType != domain.LessonTypeAssessment || p.Score == nil {
			continue
		}
		sum += *p.Score
		n++
	}
	if n == 0 {
		return nil
	}
	avg := round2(sum / float64(n))
	return &avg
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
