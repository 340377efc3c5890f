package validate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"htmlsplit/pkg/contract"
)

// UT-VA-01: 多余的 </div> 只报告一条 UnmatchedClose，且没有 UnmatchedOpen。
func TestCheckStrayClose(t *testing.T) {
	doc := "<html><body><div><p>a</p></div></div></body></html>"
	issues, err := Check(doc, nil)
	require.NoError(t, err)
	want := []contract.ValidationIssue{{Kind: contract.UnmatchedClose, Offset: 31, TagName: "div"}}
	if diff := cmp.Diff(want, issues); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}
}

// UT-VA-02: 重复校验得到相同结果。
func TestCheckIdempotent(t *testing.T) {
	docs := []string{
		"",
		"<div><span></div>",
		"<!DOCTYPE html><html><body><p>x</p></body>tail</html>",
		"<html><head></head>\n<body><script>if(a<b){}</script></body></html>",
	}
	for _, doc := range docs {
		a, err := Check(doc, nil)
		require.NoError(t, err)
		b, err := Check(doc, nil)
		require.NoError(t, err)
		require.Equal(t, a, b, doc)
	}
}

func TestCheckDanglingText(t *testing.T) {
	doc := "<!DOCTYPE html>\n<html>\n<body><p>ok</p></body>\n  stray</html>\nafter"
	issues, err := Check(doc, nil)
	require.NoError(t, err)
	want := []contract.ValidationIssue{
		{Kind: contract.DanglingText, Offset: 48},
		{Kind: contract.DanglingText, Offset: 61},
	}
	if diff := cmp.Diff(want, issues); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}

	// 没有 <html> 根元素的片段不检查悬挂文本。
	issues, err = Check("text <b>bold</b> more", nil)
	require.NoError(t, err)
	require.Empty(t, issues)
}

func TestCheckScanError(t *testing.T) {
	_, err := Check("<body><script>", nil)
	require.ErrorIs(t, err, contract.ErrScan)
}

// UT-VA-03: 闸门只拒绝新增问题；strict 模式拒绝任何问题。
func TestGate(t *testing.T) {
	in := []contract.ValidationIssue{{Kind: contract.UnmatchedClose, Offset: 10, TagName: "div"}}
	shifted := []contract.ValidationIssue{{Kind: contract.UnmatchedClose, Offset: 3, TagName: "div"}}
	require.NoError(t, Gate(in, shifted, false))
	require.NoError(t, Gate(nil, nil, true))

	err := Gate(in, append(shifted, contract.ValidationIssue{Kind: contract.UnmatchedClose, Offset: 7, TagName: "div"}), false)
	var be *contract.BalanceError
	require.ErrorAs(t, err, &be)
	require.Len(t, be.Issues, 1)
	require.Equal(t, 7, be.Issues[0].Offset)

	require.ErrorIs(t, Gate(in, shifted, true), contract.ErrUnbalanced)
}

func TestLintQuoteParity(t *testing.T) {
	blocks := []contract.ExtractedBlock{
		{Kind: contract.Script, OriginStart: 40, Content: `var a = 'ok'; var b = "it\"s";`},
		{Kind: contract.Script, OriginStart: 5, Content: "var s = 'open;\nvar t = `x"},
		{Kind: contract.Style, OriginStart: 1, Content: `a::after{content:"}`},
	}
	lints := Lint(blocks)
	require.Len(t, lints, 1)
	require.Equal(t, 5, lints[0].Offset)
	require.Contains(t, lints[0].Message, "' `")
}
