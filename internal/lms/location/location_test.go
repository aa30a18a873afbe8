package location

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	base, _ := url.Parse("https://expansao.educacao.sp.gov.br")

	table := []struct {
		page     string
		courseId string
		err      error
	}{
		{page: "https://expansao.educacao.sp.gov.br/course/view.php?id=42", courseId: "42"},
		{page: "https://EXPANSAO.educacao.sp.gov.br/course/view.php?id=7&section=2", courseId: "7"},
		{page: "https://example.com/course/view.php?id=42", err: ErrWrongOrigin},
		{page: "https://expansao.educacao.sp.gov.br/my/", err: ErrNotCoursePage},
		{page: "https://expansao.educacao.sp.gov.br/course/view.php", err: ErrMissingCourseId},
	}

	for _, row := range table {
		courseId, err := Check(row.page, base)
		if row.err != nil {
			require.ErrorIs(t, err, row.err, row.page)
			continue
		}
		require.NoError(t, err, row.page)
		require.Equal(t, row.courseId, courseId)
	}
}
