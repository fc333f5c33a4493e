package importer

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

func TestParseQuotedFields(t *testing.T) {
	data := "\uFEFFTitle,Body\r\n\"Hello, world\",\"She said \"\"hi\"\"\"\r\n\"multi\nline\",plain\r\n"
	table, err := Parse([]byte(data))
	require.NoError(t, err)
	require.Equal(t, []string{"Title", "Body"}, table.Headers)
	require.Len(t, table.Rows, 2)
	require.Equal(t, "Hello, world", table.Rows[0][0])
	require.Equal(t, `She said "hi"`, table.Rows[0][1])
	require.Equal(t, "multi\nline", table.Rows[1][0])
	require.Equal(t, []int{2, 3}, table.Lines)
}

func TestParseLinesFollowPhysicalFile(t *testing.T) {
	table, err := Parse([]byte("title,body\n\n\"two\nlines\",x\n\nlast,y\n"))
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	require.Equal(t, []int{3, 6}, table.Lines)
	require.Equal(t, 6, table.Line(1))
	require.Equal(t, 9, table.Line(7))
}

func TestParseDropsBlankRows(t *testing.T) {
	table, err := Parse([]byte("a,b\n1,2\n\n , \n3,4\n"))
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	require.Equal(t, "3", table.Rows[1][0])
	require.Equal(t, []int{2, 5}, table.Lines)
}

func TestParseEmptyInput(t *testing.T) {
	for _, input := range []string{"", "\uFEFF", "  \n\n"} {
		table, err := Parse([]byte(input))
		require.NoError(t, err)
		require.Empty(t, table.Headers)
		require.Empty(t, table.Rows)
	}
}

func TestParseUnterminatedQuote(t *testing.T) {
	_, err := Parse([]byte("a,b\n1,2\n\"never closed,3\n4,5\n"))
	require.ErrorIs(t, err, appErr.ErrImportMalformedFile)
	var pe *appErr.ParseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, 3, pe.Line)
}

func TestParseToleratesBareQuotes(t *testing.T) {
	table, err := Parse([]byte("a,b\nsay \"hi\",2\n"))
	require.NoError(t, err)
	require.Equal(t, `say "hi"`, table.Rows[0][0])
}

func TestParseRaggedRows(t *testing.T) {
	table, err := Parse([]byte("a,b,c\n1\n1,2,3,4\n"))
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	require.Equal(t, "1", Cell(table.Rows[0], 0))
	require.Equal(t, "", Cell(table.Rows[0], 2))
	require.Equal(t, "", Cell(table.Rows[0], -1))
}

func TestParseRowCountMatchesInput(t *testing.T) {
	for _, n := range []int{1, 7, 250} {
		var sb strings.Builder
		sb.WriteString("x,y,z\n")
		for i := 0; i < n; i++ {
			sb.WriteString(fmt.Sprintf("%d,\"v,%d\",z\r\n", i, i))
		}
		table, err := Parse([]byte(sb.String()))
		require.NoError(t, err)
		require.Len(t, table.Rows, n)
		for _, row := range table.Rows {
			require.Len(t, row, len(table.Headers))
		}
	}
}
