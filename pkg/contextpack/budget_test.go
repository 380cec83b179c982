// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package contextpack

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ctxOf(kind ContextKind, n int) CodeContext {
	return CodeContext{FilePath: string(kind), Kind: kind, Snippet: strings.Repeat("x", n)}
}

func totalLen(cs []CodeContext) int {
	n := 0
	for _, c := range cs {
		n += runeLen(c.Snippet)
	}
	return n
}

func TestAllocate_NonPositiveBudget(t *testing.T) {
	in := []CodeContext{ctxOf(KindHandler, 10)}
	assert.Empty(t, Allocate(in, 0))
	assert.Empty(t, Allocate(in, -5))
}

func TestAllocate_FitsUnchanged(t *testing.T) {
	in := []CodeContext{ctxOf(KindHandler, 100), ctxOf(KindDTO, 50), ctxOf(KindMiddleware, 20)}
	out := Allocate(in, 1000)
	assert.Equal(t, in, out)
}

func TestAllocate_TruncatesThenDrops(t *testing.T) {
	// handler allowance is 1000
	in := []CodeContext{
		ctxOf(KindHandler, 300),
		ctxOf(KindHandler, 900),
		ctxOf(KindHandler, 10),
	}
	out := Allocate(in, 2000)
	require.Len(t, out, 2)
	assert.Equal(t, 300, runeLen(out[0].Snippet))
	assert.Equal(t, 500, runeLen(out[1].Snippet))
}

func TestAllocate_TruncatedToNothingIsDropped(t *testing.T) {
	// handler allowance is 500; 200 left when the second snippet arrives
	in := []CodeContext{ctxOf(KindHandler, 300), ctxOf(KindHandler, 400), ctxOf(KindHandler, 1)}
	out := Allocate(in, 1000)
	require.Len(t, out, 1)
	assert.Equal(t, 300, runeLen(out[0].Snippet))
}

func TestAllocate_GroupsAreIndependent(t *testing.T) {
	in := []CodeContext{
		ctxOf(KindDTO, 5000),
		ctxOf(KindHandler, 100),
		ctxOf(KindException, 50),
	}
	out := Allocate(in, 1000)
	require.Len(t, out, 3)
	assert.Equal(t, KindHandler, out[0].Kind)
	assert.Equal(t, 100, runeLen(out[0].Snippet))
	assert.Equal(t, KindDTO, out[1].Kind)
	assert.Equal(t, 300-truncateSlack, runeLen(out[1].Snippet))
	assert.Equal(t, KindException, out[2].Kind)
}

func TestAllocate_NeverExceedsBudgetAndIsDeterministic(t *testing.T) {
	kinds := []ContextKind{KindHandler, KindDTO, KindController, KindMiddleware}
	seed := 7
	next := func() int {
		seed = (seed*1103515245 + 12345) % 2147483648
		return seed
	}
	for round := 0; round < 200; round++ {
		var in []CodeContext
		for i := 0; i < next()%8; i++ {
			in = append(in, ctxOf(kinds[next()%len(kinds)], next()%4000))
		}
		budget := next()%15000 - 500

		out := Allocate(in, budget)
		assert.LessOrEqual(t, totalLen(out), max(0, budget))
		assert.Equal(t, out, Allocate(in, budget))
	}
}

func TestAllocate_CountsCharactersNotBytes(t *testing.T) {
	in := []CodeContext{{Kind: KindHandler, Snippet: strings.Repeat("é", 600)}}
	out := Allocate(in, 1000)
	require.Len(t, out, 1)
	assert.Equal(t, 300, runeLen(out[0].Snippet))
	assert.True(t, strings.HasPrefix(strings.Repeat("é", 600), out[0].Snippet))
}

func TestCollectFacts(t *testing.T) {
	assert.Empty(t, CollectFacts("plain code"))

	facts := CollectFacts("const upload = multer()\napp.use(express.urlencoded())\nrouter.use(requireAuth)")
	assert.Equal(t, []string{FactMultipart, FactURLEncoded, FactAuth}, facts)

	facts = CollectFacts("@PreAuthorize(\"hasRole('ADMIN')\")\npublic void x(@RequestBody Body b, @ModelAttribute Form f)")
	assert.Equal(t, []string{FactAuth, FactMultipart, FactJSONBody}, facts)

	var ep Endpoint
	applyFacts(&ep, []string{FactAuth, FactJSONBody, FactMultipart})
	assert.Equal(t, "role required", ep.Auth)
	assert.Equal(t, "application/json", ep.Consumes)
	assert.True(t, HasAuthFact([]string{FactJSONBody, FactAuth}))
}

func TestExtractDeclaration(t *testing.T) {
	code := `// order types
export interface CreateOrder {
  sku: string
  nested: { a: number }
}

type Role = 'admin' | 'user'
const x = 1

export const OrderSchema = z.object({
  id: z.string(),
})
`
	snippet, start, end, ok := extractDeclaration(code, "CreateOrder")
	require.True(t, ok)
	assert.Equal(t, 1, start)
	assert.Equal(t, 6, end)
	assert.Contains(t, snippet, "nested: { a: number }")
	assert.NotContains(t, snippet, "Role")

	snippet, _, _, ok = extractDeclaration(code, "Role")
	require.True(t, ok)
	assert.Equal(t, "\ntype Role = 'admin' | 'user'\nconst x = 1\n", snippet)

	snippet, _, _, ok = extractDeclaration(code, "OrderSchema")
	require.True(t, ok)
	assert.Contains(t, snippet, "id: z.string(),\n})")

	_, _, _, ok = extractDeclaration(code, "Create")
	assert.False(t, ok)
}

func TestSignatureTypeNames(t *testing.T) {
	lines := []string{
		"import x from 'y'",
		"router.post('/o', async (req: Request<CreateOrder>, res): Promise<Order> => {",
		"  return 1",
	}
	assert.Equal(t, []string{"Request", "Promise", "CreateOrder", "Order"}, signatureTypeNames(lines, 2))
}
