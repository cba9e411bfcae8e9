package model

import (
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorf(t *testing.T) {
	Convey("Given an error built with Errorf", t, func() {
		err := Errorf("facility.get", ErrNotFound, "facility %d", 9)

		Convey("Then it matches its kind and carries the op", func() {
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			So(errors.Is(err, ErrUnauthorized), ShouldBeFalse)
			So(err.Error(), ShouldEqual, "facility.get: not found: facility 9")
			So(Rejected(err), ShouldBeTrue)
		})

		Convey("Then foreign errors are not rejections", func() {
			So(Rejected(fmt.Errorf("disk: %w", errors.New("io"))), ShouldBeFalse)
			So(Rejected(nil), ShouldBeFalse)
		})
	})
}

func TestParseStatus(t *testing.T) {
	Convey("Given status strings", t, func() {
		s, err := ParseStatus("completed")
		So(err, ShouldBeNil)
		So(s, ShouldEqual, StatusCompleted)

		s, err = ParseStatus(" 2 ")
		So(err, ShouldBeNil)
		So(s, ShouldEqual, StatusInProgress)
		So(s.String(), ShouldEqual, "in_progress")

		_, err = ParseStatus("done")
		So(errors.Is(err, ErrInvalidArgument), ShouldBeTrue)

		So(Status(0).Valid(), ShouldBeFalse)
		So(Status(9).String(), ShouldEqual, "status(9)")
	})
}
