package cell

import "testing"

func BenchmarkCellSet(b *testing.B) {
	c := New(0)
	c.Connect(func(int) {})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(i)
	}
}

func BenchmarkDerivedChain(b *testing.B) {
	src := New(0)
	var last Input[int] = src
	for i := 0; i < 10; i++ {
		last = Derive1(last, func(x int) int { return x + 1 })
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		src.Set(i)
	}
}

func BenchmarkFanOut(b *testing.B) {
	c := New(0)
	for i := 0; i < 100; i++ {
		c.Connect(func(int) {}, WithKey(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(i)
	}
}

func BenchmarkWrap(b *testing.B) {
	raw := make([]any, 100)
	for i := range raw {
		raw[i] = i
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Wrap(raw)
	}
}
