package lexer

import (
	"testing"

	"nilan/token"
)

func TestScanTokenTypes(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   []token.TokenType
	}{
		{
			name:   "empty input yields only EOF",
			source: "",
			want:   []token.TokenType{token.EOF},
		},
		{
			name:   "simple application",
			source: "(+ 1 2)",
			want:   []token.TokenType{token.LPAREN, token.SYMBOL, token.INTEGER, token.INTEGER, token.RPAREN, token.EOF},
		},
		{
			name:   "bracket list is equivalent to paren list",
			source: "[1 2]",
			want:   []token.TokenType{token.LPAREN, token.INTEGER, token.INTEGER, token.RPAREN, token.EOF},
		},
		{
			name:   "float literal",
			source: "3.14",
			want:   []token.TokenType{token.FLOAT, token.EOF},
		},
		{
			name:   "line comment is skipped",
			source: "1 ; a comment\n2",
			want:   []token.TokenType{token.INTEGER, token.INTEGER, token.EOF},
		},
		{
			name:   "string literal",
			source: `"hello world"`,
			want:   []token.TokenType{token.STRING, token.EOF},
		},
		{
			name:   "character literal",
			source: `\a`,
			want:   []token.TokenType{token.CHAR, token.EOF},
		},
		{
			name:   "quote sugar",
			source: "'(1 2)",
			want:   []token.TokenType{token.QUOTE, token.LPAREN, token.INTEGER, token.INTEGER, token.RPAREN, token.EOF},
		},
		{
			name:   "dotted pair",
			source: "(1 . 2)",
			want:   []token.TokenType{token.LPAREN, token.INTEGER, token.DOT, token.INTEGER, token.RPAREN, token.EOF},
		},
		{
			name:   "malformed number falls back to symbol",
			source: "1+",
			want:   []token.TokenType{token.SYMBOL, token.EOF},
		},
		{
			name:   "variadic marker is a symbol, not three dots",
			source: "(a ... rest)",
			want:   []token.TokenType{token.LPAREN, token.SYMBOL, token.SYMBOL, token.SYMBOL, token.RPAREN, token.EOF},
		},
		{
			name:   "leading-dot fraction is a float",
			source: ".5",
			want:   []token.TokenType{token.FLOAT, token.EOF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lex := New(tt.source)
			tokens, err := lex.Scan()
			if err != nil {
				t.Fatalf("Scan() returned error: %v", err)
			}
			if len(tokens) != len(tt.want) {
				t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(tt.want), tokens)
			}
			for i, tok := range tokens {
				if tok.Type != tt.want[i] {
					t.Errorf("token %d: got %s, want %s", i, tok.Type, tt.want[i])
				}
			}
		})
	}
}

func TestScanUnterminatedString(t *testing.T) {
	lex := New(`"unterminated`)
	_, err := lex.Scan()
	if err == nil {
		t.Fatal("expected an error for an unterminated string literal")
	}
}

func TestScanTracksLineAndColumn(t *testing.T) {
	lex := New("1\n2")
	tokens, err := lex.Scan()
	if err != nil {
		t.Fatalf("Scan() returned error: %v", err)
	}
	if tokens[0].Line != 1 {
		t.Errorf("first token line = %d, want 1", tokens[0].Line)
	}
	if tokens[1].Line != 2 {
		t.Errorf("second token line = %d, want 2", tokens[1].Line)
	}
}
