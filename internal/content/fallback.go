// ABOUTME: Deterministic slide content used when no text backend is configured or it fails
// ABOUTME: Always yields exactly the requested number of slides: intro, numbered parts, conclusion

package content

import "fmt"

// Fallback builds pages slides for topic without any external call.
// Slide 1 introduces the topic and the last slide concludes it.
func Fallback(topic string, pages int) *SlideContent {
	if pages < 1 {
		pages = 1
	}
	result := &SlideContent{Title: topic, Slides: make([]Slide, 0, pages)}
	for n := 1; n <= pages; n++ {
		result.Slides = append(result.Slides, fallbackSlide(topic, n, pages))
	}
	return result
}

func fallbackSlide(topic string, n, pages int) Slide {
	switch {
	case n == 1:
		return Slide{
			Number: 1,
			Title:  "Kirish: " + topic,
			Bullets: []string{
				"Mavzu: " + topic,
				fmt.Sprintf("Bu prezentatsiya %d sahifadan iborat", pages),
				"Mavzuni batafsil o'rganamiz",
				"Amaliy va nazariy jihatlar ko'rib chiqiladi",
			},
			ImageQuery: topic,
		}
	case n == pages:
		return Slide{
			Number: n,
			Title:  "Xulosa va Tavsiyalar",
			Bullets: []string{
				"Mavzu bo'yicha umumiy xulosalar",
				"Asosiy o'rganilgan fikrlar",
				"Amaliy tavsiyalar va yo'nalishlar",
				"Qo'shimcha o'rganish uchun manbalar",
				"Diqqat uchun rahmat!",
			},
			ImageQuery: topic + " conclusion",
		}
	default:
		return Slide{
			Number: n,
			Title:  fmt.Sprintf("%s - Qism %d", topic, n),
			Bullets: []string{
				fmt.Sprintf("Mavzuning %d-qismi batafsil", n),
				"Asosiy tushunchalar va ta'riflar",
				"Amaliy misollar va qo'llanishlar",
				"Muhim xulosalar va tavsiyalar",
			},
			ImageQuery: topic,
		}
	}
}
