package service_test

import (
	"testing"

	service "github.com/okian/pokeget/internal/app"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBreaker(t *testing.T) {
	Convey("Given a breaker with default limits", t, func() {
		b := service.NewBreaker(0, 0)

		Convey("When fetches fail five times in a row", func() {
			for i := 0; i < 5; i++ {
				b.FetchStarted()
				b.FetchFailed()
				b.Settle()
			}

			Convey("Then it has not tripped yet", func() {
				So(b.FetchFailures, ShouldEqual, 5)
				So(b.FetchAttempts, ShouldEqual, 0)
				So(b.Tripped(), ShouldBeNil)
			})

			Convey("And a sixth failure trips the fetch breaker", func() {
				b.FetchStarted()
				b.FetchFailed()
				b.Settle()
				exit := b.Tripped()
				So(exit, ShouldNotBeNil)
				So(exit.Code, ShouldEqual, service.ExitFetchFailures)
				So(exit.Phase, ShouldEqual, service.PhaseFetch)
				So(exit.Error(), ShouldContainSubstring, "exit status 40")
			})
		})

		Convey("When five clean fetches follow some failures", func() {
			for i := 0; i < 4; i++ {
				b.FetchStarted()
				b.FetchFailed()
			}
			var cleared bool
			for i := 0; i < 5; i++ {
				b.FetchStarted()
				cleared = b.Settle()
			}

			Convey("Then every counter is back to zero", func() {
				So(cleared, ShouldBeTrue)
				So(*b, ShouldResemble, *service.NewBreaker(0, 0))
			})
		})

		Convey("When writes fail without any fetch attempts counted", func() {
			for i := 0; i < 6; i++ {
				b.WriteStarted()
				b.WriteFailed()
			}

			Convey("Then the write breaker trips", func() {
				exit := b.Tripped()
				So(exit, ShouldNotBeNil)
				So(exit.Code, ShouldEqual, service.ExitWriteFailures)
				So(exit.Phase, ShouldEqual, service.PhaseWrite)
			})
		})

		Convey("When both phases are over the limit", func() {
			b.FetchFailures = 6
			b.WriteFailures = 6

			Convey("Then fetch wins", func() {
				So(b.Tripped().Code, ShouldEqual, service.ExitFetchFailures)
			})
		})
	})

	Convey("Given the exit statuses", t, func() {
		So(service.ExitHelp, ShouldNotEqual, service.ExitFetchFailures)
		So(service.ExitFetchFailures, ShouldNotEqual, service.ExitWriteFailures)
		So(service.ExitHelp, ShouldNotEqual, service.ExitWriteFailures)
	})
}
