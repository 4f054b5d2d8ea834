package services

import "errors"

var (
	ErrNoPurchaser            = errors.New("no authenticated purchaser")
	ErrCourseNotFound         = errors.New("course not found")
	ErrUniversityNotFound     = errors.New("university not found")
	ErrCourseNotPurchasable   = errors.New("course is free and cannot be purchased")
	ErrCourseRequiresPurchase = errors.New("course must be purchased")
	ErrAlreadyEnrolled        = errors.New("already enrolled in this course")
	ErrAlreadyInCart          = errors.New("course is already in the cart")
	ErrCartItemNotFound       = errors.New("course is not in the cart")
	ErrEmptyCart              = errors.New("No items in cart")
	ErrNothingToPurchase      = errors.New("no course in the cart still needs purchasing")
	ErrInvalidAmount          = errors.New("amount must be a positive number")
	ErrInvalidPrice           = errors.New("paid courses need a positive price and a discount below it")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrPaymentForbidden       = errors.New("payment belongs to another user")
	ErrHashMismatch           = errors.New("payment verification failed")
	ErrNotEnrolled            = errors.New("enroll in this course first")
	ErrCommentNotFound        = errors.New("comment not found")
	ErrCommentForbidden       = errors.New("comment belongs to another user")
	ErrNoteNotFound           = errors.New("note not found")
)
