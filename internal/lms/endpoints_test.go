package lms

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEndpoints(t *testing.T) {
	require.Equal(t, "/course/view.php?id=12", CourseView("12"))
	require.Equal(t, "/mod/resource/view.php?id=7", ResourceView("7"))
	require.Equal(t, "/mod/quiz/processattempt.php?cmid=5", QuizProcessAttempt("5"))
	require.Equal(t, "/mod/quiz/summary.php?attempt=99&cmid=5", QuizSummary("99", "5"))
}
